package vault

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jointvault/jointvault/internal/custody"
	"github.com/jointvault/jointvault/internal/journal"
	"github.com/jointvault/jointvault/internal/membership"
	"github.com/jointvault/jointvault/internal/notification"
	"github.com/jointvault/jointvault/internal/shares"
	"github.com/jointvault/jointvault/internal/venue"
)

var (
	// ErrInvalidAmount occurs when an operation amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNilRecipient occurs when a shared payment names no recipient.
	ErrNilRecipient = errors.New("recipient must not be empty")

	// ErrUnauthorized indicates the caller is not one of the two partners.
	ErrUnauthorized = errors.New("caller is not a vault partner")

	// ErrSeparated indicates the relationship is already separated: shared
	// payments are disabled and separation cannot be triggered twice.
	ErrSeparated = errors.New("vault is separated")

	// ErrEmptyVault occurs when shares must be valued against a zero-asset
	// or zero-share pool.
	ErrEmptyVault = errors.New("vault is empty")

	// ErrInsufficientBalance occurs when a partner's shares are worth less
	// than the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOperationInProgress indicates a mutating operation re-entered the
	// vault while another was still running.
	ErrOperationInProgress = errors.New("operation already in progress")

	// ErrOverflow indicates proportional math exceeded the representable range.
	ErrOverflow = errors.New("arithmetic overflow")
)

// Service is the accounting engine: it converts between absolute asset
// amounts and ledger shares, splits shared expenses, and drives the custody
// and yield-venue side effects. Every mutating operation is all-or-nothing.
type Service struct {
	gate      *membership.Gate
	ledger    shares.Ledger
	custodian custody.Custody
	pool      venue.Venue
	states    StateStore
	journal   journal.Recorder
	notifier  notification.Notifier

	// busy guards against re-entrant mutation through external calls. A
	// re-entered operation must fail, not queue, so this is a flag and not
	// a mutex.
	busy atomic.Bool
}

// NewService wires the engine and registers both partners with the ledger.
func NewService(ctx context.Context, gate *membership.Gate, ledger shares.Ledger,
	custodian custody.Custody, pool venue.Venue, states StateStore,
	recorder journal.Recorder, notifier notification.Notifier) (*Service, error) {

	if err := ledger.EnsureParticipant(ctx, gate.ParticipantA()); err != nil {
		return nil, fmt.Errorf("ensure participant a: %w", err)
	}
	if err := ledger.EnsureParticipant(ctx, gate.ParticipantB()); err != nil {
		return nil, fmt.Errorf("ensure participant b: %w", err)
	}

	return &Service{
		gate:      gate,
		ledger:    ledger,
		custodian: custodian,
		pool:      pool,
		states:    states,
		journal:   recorder,
		notifier:  notifier,
	}, nil
}

func (s *Service) beginMutation() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrOperationInProgress
	}
	return nil
}

func (s *Service) endMutation() {
	s.busy.Store(false)
}

// TotalAssets values the vault live: idle custody balance plus the receipt
// balance accruing at the yield venue.
func (s *Service) TotalAssets(ctx context.Context) (int64, error) {
	idle, err := s.custodian.IdleBalance(ctx)
	if err != nil {
		return 0, err
	}
	receipt, err := s.pool.ReceiptBalance(ctx)
	if err != nil {
		return 0, err
	}
	return addChecked(idle, receipt)
}

// TotalShares returns the aggregate share supply.
func (s *Service) TotalShares(ctx context.Context) (int64, error) {
	return s.ledger.TotalSupply(ctx)
}

// SharesOf returns a partner's raw share balance.
func (s *Service) SharesOf(ctx context.Context, participant string) (int64, error) {
	if !s.gate.IsAuthorized(participant) {
		return 0, ErrUnauthorized
	}
	return s.ledger.BalanceOf(ctx, participant)
}

// EstimatedBalance floors a partner's proportional claim on total assets.
// The floor residue stays with the pool, never with a withdrawing partner.
func (s *Service) EstimatedBalance(ctx context.Context, participant string) (Valuation, error) {
	if !s.gate.IsAuthorized(participant) {
		return Valuation{}, ErrUnauthorized
	}
	balance, err := s.ledger.BalanceOf(ctx, participant)
	if err != nil {
		return Valuation{}, err
	}
	estimated, err := s.estimate(ctx, balance)
	if err != nil {
		return Valuation{}, err
	}
	return Valuation{
		Participant:      participant,
		Shares:           balance,
		EstimatedBalance: estimated,
		AsOf:             time.Now().UTC(),
	}, nil
}

func (s *Service) estimate(ctx context.Context, shareBalance int64) (int64, error) {
	total, err := s.ledger.TotalSupply(ctx)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	assets, err := s.TotalAssets(ctx)
	if err != nil {
		return 0, err
	}
	return mulDivFloor(shareBalance, assets, total)
}

// State reports the current relationship state.
func (s *Service) State(ctx context.Context) (State, error) {
	return s.states.Get(ctx)
}

// Journal returns the append-only audit trail.
func (s *Service) Journal(ctx context.Context) ([]journal.Entry, error) {
	return s.journal.List(ctx)
}

// Deposit pulls the amount into custody, mints proportional shares, and
// supplies the funds to the yield venue. The first deposit into an empty
// vault mints 1:1.
func (s *Service) Deposit(ctx context.Context, participant string, amount int64) (DepositResult, error) {
	if amount <= 0 {
		return DepositResult{}, ErrInvalidAmount
	}
	if !s.gate.IsAuthorized(participant) {
		return DepositResult{}, ErrUnauthorized
	}
	if err := s.beginMutation(); err != nil {
		return DepositResult{}, err
	}
	defer s.endMutation()

	// Valuation snapshot before the incoming transfer is visible.
	assetsBefore, err := s.TotalAssets(ctx)
	if err != nil {
		return DepositResult{}, err
	}
	totalShares, err := s.ledger.TotalSupply(ctx)
	if err != nil {
		return DepositResult{}, err
	}

	if err := s.custodian.PullIn(ctx, participant, amount); err != nil {
		return DepositResult{}, err
	}

	minted := amount
	if totalShares != 0 && assetsBefore != 0 {
		minted, err = mulDivFloor(amount, totalShares, assetsBefore)
		if err != nil {
			s.refund(ctx, participant, amount)
			return DepositResult{}, err
		}
		if minted == 0 {
			// Never accept assets for zero shares. The single forced share
			// dilutes existing holders by at most one minimal unit.
			minted = 1
		}
	}

	if err := s.ledger.Mint(ctx, participant, minted); err != nil {
		s.refund(ctx, participant, amount)
		return DepositResult{}, err
	}

	if err := s.pool.Supply(ctx, amount); err != nil {
		if burnErr := s.ledger.Burn(ctx, participant, minted); burnErr == nil {
			s.refund(ctx, participant, amount)
		}
		return DepositResult{}, err
	}

	if err := s.record(ctx, journal.Entry{
		Kind:        journal.KindDeposit,
		Actor:       participant,
		Amount:      amount,
		ShareDeltaA: s.deltaFor(participant, s.gate.ParticipantA(), minted),
		ShareDeltaB: s.deltaFor(participant, s.gate.ParticipantB(), minted),
	}); err != nil {
		// The trail must cover every committed mutation. If the entry cannot
		// be written, unwind the deposit instead of leaving it unrecorded.
		if _, werr := s.pool.Withdraw(ctx, amount); werr == nil {
			if burnErr := s.ledger.Burn(ctx, participant, minted); burnErr == nil {
				s.refund(ctx, participant, amount)
			}
		}
		return DepositResult{}, err
	}

	s.notify(ctx, participant, notification.KindDeposit,
		fmt.Sprintf("Your partner deposited %d into the vault", amount))

	return DepositResult{
		Participant:  participant,
		Amount:       amount,
		MintedShares: minted,
		CompletedAt:  time.Now().UTC(),
	}, nil
}

// Withdraw burns the shares covering the amount (ceiling-rounded), pulls any
// shortfall back from the yield venue, and transfers the amount out.
func (s *Service) Withdraw(ctx context.Context, participant string, amount int64) (WithdrawResult, error) {
	if amount <= 0 {
		return WithdrawResult{}, ErrInvalidAmount
	}
	if !s.gate.IsAuthorized(participant) {
		return WithdrawResult{}, ErrUnauthorized
	}
	if err := s.beginMutation(); err != nil {
		return WithdrawResult{}, err
	}
	defer s.endMutation()

	burned, err := s.burnSharesForAmount(ctx, participant, amount)
	if err != nil {
		return WithdrawResult{}, err
	}

	if err := s.ensureLiquidity(ctx, amount); err != nil {
		s.remint(ctx, participant, burned)
		return WithdrawResult{}, err
	}
	if err := s.custodian.PushOut(ctx, participant, amount); err != nil {
		s.remint(ctx, participant, burned)
		return WithdrawResult{}, err
	}

	if err := s.record(ctx, journal.Entry{
		Kind:        journal.KindWithdraw,
		Actor:       participant,
		Amount:      amount,
		ShareDeltaA: s.deltaFor(participant, s.gate.ParticipantA(), -burned),
		ShareDeltaB: s.deltaFor(participant, s.gate.ParticipantB(), -burned),
	}); err != nil {
		// Unwind the unrecorded withdrawal: claw the transfer back first and
		// remint only once the assets are recovered, so shares never outrun
		// the assets backing them.
		if perr := s.custodian.PullIn(ctx, participant, amount); perr == nil {
			s.remint(ctx, participant, burned)
		}
		return WithdrawResult{}, err
	}

	return WithdrawResult{
		Participant:  participant,
		Amount:       amount,
		BurnedShares: burned,
		CompletedAt:  time.Now().UTC(),
	}, nil
}

// PayShared debits both partners 50/50 for a common expense and transfers
// the full amount to the recipient. Odd amounts charge the extra minimal
// unit to whichever partner holds the greater live balance; ties go to
// partner A.
func (s *Service) PayShared(ctx context.Context, caller, recipient string, amount int64) (PaymentResult, error) {
	if amount <= 0 {
		return PaymentResult{}, ErrInvalidAmount
	}
	if recipient == "" {
		return PaymentResult{}, ErrNilRecipient
	}
	if !s.gate.IsAuthorized(caller) {
		return PaymentResult{}, ErrUnauthorized
	}
	if err := s.beginMutation(); err != nil {
		return PaymentResult{}, err
	}
	defer s.endMutation()

	state, err := s.states.Get(ctx)
	if err != nil {
		return PaymentResult{}, err
	}
	if state != StateActive {
		return PaymentResult{}, ErrSeparated
	}

	partnerA := s.gate.ParticipantA()
	partnerB := s.gate.ParticipantB()

	assetsNow, err := s.TotalAssets(ctx)
	if err != nil {
		return PaymentResult{}, err
	}
	totalShares, err := s.ledger.TotalSupply(ctx)
	if err != nil {
		return PaymentResult{}, err
	}
	if assetsNow == 0 || totalShares == 0 {
		return PaymentResult{}, ErrEmptyVault
	}

	paidByA := amount / 2
	paidByB := amount / 2
	if amount%2 == 1 {
		estimateA, err := s.liveBalance(ctx, partnerA)
		if err != nil {
			return PaymentResult{}, err
		}
		estimateB, err := s.liveBalance(ctx, partnerB)
		if err != nil {
			return PaymentResult{}, err
		}
		if estimateA >= estimateB {
			paidByA++
		} else {
			paidByB++
		}
	}

	// Both halves are valued against the same snapshot, taken before either
	// burn: equal halves burn equal shares, and the first burn cannot cheapen
	// the second.
	var burnedA, burnedB int64
	if paidByA > 0 {
		if burnedA, err = mulDivCeil(paidByA, totalShares, assetsNow); err != nil {
			return PaymentResult{}, err
		}
	}
	if paidByB > 0 {
		if burnedB, err = mulDivCeil(paidByB, totalShares, assetsNow); err != nil {
			return PaymentResult{}, err
		}
	}

	balanceA, err := s.ledger.BalanceOf(ctx, partnerA)
	if err != nil {
		return PaymentResult{}, err
	}
	balanceB, err := s.ledger.BalanceOf(ctx, partnerB)
	if err != nil {
		return PaymentResult{}, err
	}
	if balanceA < burnedA || balanceB < burnedB {
		return PaymentResult{}, ErrInsufficientBalance
	}

	if burnedA > 0 {
		if err := s.ledger.Burn(ctx, partnerA, burnedA); err != nil {
			if errors.Is(err, shares.ErrInsufficientShares) {
				err = ErrInsufficientBalance
			}
			return PaymentResult{}, err
		}
	}
	if burnedB > 0 {
		if err := s.ledger.Burn(ctx, partnerB, burnedB); err != nil {
			s.remint(ctx, partnerA, burnedA)
			if errors.Is(err, shares.ErrInsufficientShares) {
				err = ErrInsufficientBalance
			}
			return PaymentResult{}, err
		}
	}

	if err := s.ensureLiquidity(ctx, amount); err != nil {
		s.remint(ctx, partnerB, burnedB)
		s.remint(ctx, partnerA, burnedA)
		return PaymentResult{}, err
	}
	if err := s.custodian.PushOut(ctx, recipient, amount); err != nil {
		s.remint(ctx, partnerB, burnedB)
		s.remint(ctx, partnerA, burnedA)
		return PaymentResult{}, err
	}

	if err := s.record(ctx, journal.Entry{
		Kind:        journal.KindSharedPayment,
		Actor:       caller,
		Recipient:   recipient,
		Amount:      amount,
		ShareDeltaA: -burnedA,
		ShareDeltaB: -burnedB,
	}); err != nil {
		if perr := s.custodian.PullIn(ctx, recipient, amount); perr == nil {
			s.remint(ctx, partnerB, burnedB)
			s.remint(ctx, partnerA, burnedA)
		}
		return PaymentResult{}, err
	}

	s.notify(ctx, caller, notification.KindSharedPayment,
		fmt.Sprintf("Shared payment of %d sent to %s", amount, recipient))

	return PaymentResult{
		Recipient:     recipient,
		Amount:        amount,
		PaidByA:       paidByA,
		PaidByB:       paidByB,
		BurnedSharesA: burnedA,
		BurnedSharesB: burnedB,
		CompletedAt:   time.Now().UTC(),
	}, nil
}

// TriggerSeparation moves the relationship to its terminal state. One-way:
// a second trigger fails, and shared payments are disabled from here on.
func (s *Service) TriggerSeparation(ctx context.Context, caller string) error {
	if !s.gate.IsAuthorized(caller) {
		return ErrUnauthorized
	}
	if err := s.beginMutation(); err != nil {
		return err
	}
	defer s.endMutation()

	state, err := s.states.Get(ctx)
	if err != nil {
		return err
	}
	if state != StateActive {
		return ErrSeparated
	}

	if err := s.states.Set(ctx, StateSeparated); err != nil {
		return err
	}

	if err := s.record(ctx, journal.Entry{
		Kind:  journal.KindSeparation,
		Actor: caller,
	}); err != nil {
		// Nobody has observed the separated state yet; roll it back so the
		// transition and its trail entry land together or not at all.
		_ = s.states.Set(ctx, StateActive)
		return err
	}

	s.notify(ctx, caller, notification.KindSeparation,
		"Your partner triggered separation; shared payments are now disabled")

	return nil
}

// burnSharesForAmount is the shared helper behind withdrawals and shared
// payments: it ceiling-rounds the shares needed to cover the amount and
// burns them. Ceiling on burn is the counterpart of floor on mint; the at
// most one extra share unit is paid by the caller, never by the pool.
func (s *Service) burnSharesForAmount(ctx context.Context, participant string, amount int64) (int64, error) {
	assetsNow, err := s.TotalAssets(ctx)
	if err != nil {
		return 0, err
	}
	totalShares, err := s.ledger.TotalSupply(ctx)
	if err != nil {
		return 0, err
	}
	if assetsNow == 0 || totalShares == 0 {
		return 0, ErrEmptyVault
	}

	needed, err := mulDivCeil(amount, totalShares, assetsNow)
	if err != nil {
		return 0, err
	}

	balance, err := s.ledger.BalanceOf(ctx, participant)
	if err != nil {
		return 0, err
	}
	if balance < needed {
		return 0, ErrInsufficientBalance
	}

	if err := s.ledger.Burn(ctx, participant, needed); err != nil {
		if errors.Is(err, shares.ErrInsufficientShares) {
			return 0, ErrInsufficientBalance
		}
		return 0, err
	}
	return needed, nil
}

// ensureLiquidity lazily pulls the exact shortfall back from the yield venue
// when idle custody cannot cover an outgoing transfer.
func (s *Service) ensureLiquidity(ctx context.Context, amount int64) error {
	idle, err := s.custodian.IdleBalance(ctx)
	if err != nil {
		return err
	}
	if idle >= amount {
		return nil
	}

	shortfall := amount - idle
	redeemed, err := s.pool.Withdraw(ctx, shortfall)
	if err != nil {
		return err
	}
	if redeemed < shortfall {
		return ErrInsufficientBalance
	}
	return nil
}

func (s *Service) liveBalance(ctx context.Context, participant string) (int64, error) {
	balance, err := s.ledger.BalanceOf(ctx, participant)
	if err != nil {
		return 0, err
	}
	return s.estimate(ctx, balance)
}

// remint compensates a completed burn when a later step of the same
// operation fails, restoring the exact prior ledger state.
func (s *Service) remint(ctx context.Context, participant string, burned int64) {
	if burned > 0 {
		_ = s.ledger.Mint(ctx, participant, burned)
	}
}

// refund best-effort returns a pulled-in deposit when minting fails.
func (s *Service) refund(ctx context.Context, participant string, amount int64) {
	_ = s.custodian.PushOut(ctx, participant, amount)
}

func (s *Service) record(ctx context.Context, entry journal.Entry) error {
	entry.ID = uuid.NewString()
	entry.RecordedAt = time.Now().UTC()
	return s.journal.Append(ctx, entry)
}

func (s *Service) deltaFor(actor, participant string, delta int64) int64 {
	if actor == participant {
		return delta
	}
	return 0
}

func (s *Service) notify(ctx context.Context, actor, kind, body string) {
	if s.notifier == nil {
		return
	}
	partner := s.gate.Other(actor)
	if partner == "" {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: partner,
		Body:        body,
	})
}
