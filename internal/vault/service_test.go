package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/jointvault/jointvault/internal/custody"
	"github.com/jointvault/jointvault/internal/journal"
	"github.com/jointvault/jointvault/internal/membership"
	"github.com/jointvault/jointvault/internal/shares"
	"github.com/jointvault/jointvault/internal/venue"
)

const (
	partnerA = "partner:a"
	partnerB = "partner:b"
	merchant = "merchant:grocery"
)

type testVault struct {
	svc       *Service
	ledger    shares.Ledger
	custodian *custody.Simulator
	pool      *venue.Simulator
	journal   journal.Recorder
}

func newTestVault(t *testing.T) *testVault {
	t.Helper()
	return newTestVaultWithRecorder(t, journal.NewInMemory())
}

func newTestVaultWithRecorder(t *testing.T, recorder journal.Recorder) *testVault {
	t.Helper()

	gate, err := membership.New(partnerA, partnerB)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	led := shares.NewInMemory()
	custodian := custody.NewSimulator()
	pool := venue.NewSimulator(custodian)

	svc, err := NewService(context.Background(), gate, led, custodian, pool,
		NewMemoryStateStore(), recorder, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return &testVault{svc: svc, ledger: led, custodian: custodian, pool: pool, journal: recorder}
}

func (tv *testVault) mustDeposit(t *testing.T, participant string, amount int64) DepositResult {
	t.Helper()
	res, err := tv.svc.Deposit(context.Background(), participant, amount)
	if err != nil {
		t.Fatalf("deposit %d by %s: %v", amount, participant, err)
	}
	return res
}

func TestDepositBootstrapMintsOneToOne(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	res := tv.mustDeposit(t, partnerA, 1_000_000)
	if res.MintedShares != 1_000_000 {
		t.Fatalf("expected 1000000 shares, got %d", res.MintedShares)
	}

	assets, err := tv.svc.TotalAssets(ctx)
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	if assets != 1_000_000 {
		t.Fatalf("expected total assets 1000000, got %d", assets)
	}
}

func TestDepositAfterYieldAccrual(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000_000)

	// 10% yield accrues at the venue, no new deposits.
	tv.pool.Accrue(100_000)

	res := tv.mustDeposit(t, partnerB, 1_100_000)
	if res.MintedShares != 1_000_000 {
		t.Fatalf("expected 1000000 shares for b, got %d", res.MintedShares)
	}

	assets, _ := tv.svc.TotalAssets(ctx)
	if assets != 2_200_000 {
		t.Fatalf("expected total assets 2200000, got %d", assets)
	}

	valA, err := tv.svc.EstimatedBalance(ctx, partnerA)
	if err != nil {
		t.Fatalf("estimate a: %v", err)
	}
	valB, err := tv.svc.EstimatedBalance(ctx, partnerB)
	if err != nil {
		t.Fatalf("estimate b: %v", err)
	}
	if valA.EstimatedBalance != 1_100_000 || valB.EstimatedBalance != 1_100_000 {
		t.Fatalf("expected 1100000 each, got a=%d b=%d", valA.EstimatedBalance, valB.EstimatedBalance)
	}
}

func TestDepositValidation(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	if _, err := tv.svc.Deposit(ctx, partnerA, 0); err != ErrInvalidAmount {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := tv.svc.Deposit(ctx, partnerA, -5); err != ErrInvalidAmount {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := tv.svc.Deposit(ctx, "stranger", 100); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDepositNeverMintsZeroShares(t *testing.T) {
	tv := newTestVault(t)

	tv.mustDeposit(t, partnerA, 10)
	tv.pool.Accrue(1_000_000)

	// floor(1 * 10 / 1000010) == 0; the depositor still gets one share.
	res := tv.mustDeposit(t, partnerB, 1)
	if res.MintedShares != 1 {
		t.Fatalf("expected forced single share, got %d", res.MintedShares)
	}
}

func TestWithdrawBurnsCeiling(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)
	tv.pool.Accrue(500)

	// ceil(100 * 1000 / 1500) = 67; floor would undercharge at 66.
	res, err := tv.svc.Withdraw(ctx, partnerA, 100)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.BurnedShares != 67 {
		t.Fatalf("expected 67 shares burned, got %d", res.BurnedShares)
	}

	assets, _ := tv.svc.TotalAssets(ctx)
	if assets != 1_400 {
		t.Fatalf("expected assets 1400 after withdrawal, got %d", assets)
	}

	balance, _ := tv.ledger.BalanceOf(ctx, partnerA)
	if balance != 933 {
		t.Fatalf("expected 933 shares remaining, got %d", balance)
	}
}

func TestWithdrawPullsShortfallFromVenue(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 5_000)

	idle, _ := tv.custodian.IdleBalance(ctx)
	if idle != 0 {
		t.Fatalf("deposit should forward everything to the venue, idle=%d", idle)
	}

	if _, err := tv.svc.Withdraw(ctx, partnerA, 2_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	receipt, _ := tv.pool.ReceiptBalance(ctx)
	if receipt != 3_000 {
		t.Fatalf("expected receipt 3000 after lazy redemption, got %d", receipt)
	}
}

func TestWithdrawFailures(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	if _, err := tv.svc.Withdraw(ctx, partnerA, 100); err != ErrEmptyVault {
		t.Fatalf("expected empty vault, got %v", err)
	}

	tv.mustDeposit(t, partnerA, 1_000)

	if _, err := tv.svc.Withdraw(ctx, partnerB, 100); err != ErrInsufficientBalance {
		t.Fatalf("expected insufficient balance for b, got %v", err)
	}
	if _, err := tv.svc.Withdraw(ctx, partnerA, 2_000); err != ErrInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := tv.svc.Withdraw(ctx, partnerA, 0); err != ErrInvalidAmount {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	// Nothing moved on the failed attempts.
	balance, _ := tv.ledger.BalanceOf(ctx, partnerA)
	if balance != 1_000 {
		t.Fatalf("failed withdrawals mutated shares: %d", balance)
	}
}

func TestPaySharedEvenSplit(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)
	tv.mustDeposit(t, partnerB, 1_000)

	res, err := tv.svc.PayShared(ctx, partnerA, merchant, 400)
	if err != nil {
		t.Fatalf("pay shared: %v", err)
	}
	if res.PaidByA != 200 || res.PaidByB != 200 {
		t.Fatalf("expected 200/200 split, got %d/%d", res.PaidByA, res.PaidByB)
	}
	if res.BurnedSharesA != 200 || res.BurnedSharesB != 200 {
		t.Fatalf("expected 200 shares burned each, got %d/%d", res.BurnedSharesA, res.BurnedSharesB)
	}

	assets, _ := tv.svc.TotalAssets(ctx)
	if assets != 1_600 {
		t.Fatalf("expected assets 1600, got %d", assets)
	}
}

func TestPaySharedValuesBothBurnsAgainstSameSnapshot(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)
	tv.mustDeposit(t, partnerB, 1_000)
	tv.pool.Accrue(1_000)

	// Equal halves valued at 2000 shares / 3000 assets: 100 shares each.
	// Pricing the second half against the post-burn supply would shave it
	// to 95 and let B pay the same amount with fewer shares.
	res, err := tv.svc.PayShared(ctx, partnerA, merchant, 300)
	if err != nil {
		t.Fatalf("pay shared: %v", err)
	}
	if res.BurnedSharesA != res.BurnedSharesB {
		t.Fatalf("equal halves burned unequal shares: %d/%d", res.BurnedSharesA, res.BurnedSharesB)
	}
	if res.BurnedSharesA != 100 {
		t.Fatalf("expected 100 shares burned each, got %d", res.BurnedSharesA)
	}

	balanceA, _ := tv.ledger.BalanceOf(ctx, partnerA)
	balanceB, _ := tv.ledger.BalanceOf(ctx, partnerB)
	if balanceA != 900 || balanceB != 900 {
		t.Fatalf("expected 900 shares each, got a=%d b=%d", balanceA, balanceB)
	}
}

func TestPaySharedOddAmountTieFavorsFirstPartner(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000_000)
	tv.pool.Accrue(100_000)
	tv.mustDeposit(t, partnerB, 1_100_000)

	// Both balances sit at 1,100,000: the tie charges partner A the extra unit.
	res, err := tv.svc.PayShared(ctx, partnerA, merchant, 3)
	if err != nil {
		t.Fatalf("pay shared: %v", err)
	}
	if res.PaidByA != 2 || res.PaidByB != 1 {
		t.Fatalf("expected 2/1 split, got %d/%d", res.PaidByA, res.PaidByB)
	}
	if res.PaidByA+res.PaidByB != 3 {
		t.Fatalf("split does not cover amount: %d+%d", res.PaidByA, res.PaidByB)
	}
}

func TestPaySharedOddAmountChargesRicherPartner(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)
	tv.mustDeposit(t, partnerB, 3_000)

	res, err := tv.svc.PayShared(ctx, partnerB, merchant, 101)
	if err != nil {
		t.Fatalf("pay shared: %v", err)
	}
	if res.PaidByA != 50 || res.PaidByB != 51 {
		t.Fatalf("expected richer partner b to pay 51, got a=%d b=%d", res.PaidByA, res.PaidByB)
	}
}

func TestPaySharedAtomicOnPartnerShortfall(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)
	tv.mustDeposit(t, partnerB, 10)

	assetsBefore, _ := tv.svc.TotalAssets(ctx)

	// B cannot cover half of 500; the payment must leave both ledgers untouched.
	if _, err := tv.svc.PayShared(ctx, partnerA, merchant, 500); err != ErrInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	balanceA, _ := tv.ledger.BalanceOf(ctx, partnerA)
	balanceB, _ := tv.ledger.BalanceOf(ctx, partnerB)
	if balanceA != 1_000 || balanceB != 10 {
		t.Fatalf("failed payment mutated shares: a=%d b=%d", balanceA, balanceB)
	}

	assetsAfter, _ := tv.svc.TotalAssets(ctx)
	if assetsAfter != assetsBefore {
		t.Fatalf("failed payment moved assets: %d -> %d", assetsBefore, assetsAfter)
	}

	entries, _ := tv.journal.List(ctx)
	for _, e := range entries {
		if e.Kind == journal.KindSharedPayment {
			t.Fatalf("failed payment produced an audit record")
		}
	}
}

func TestPaySharedValidation(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)

	if _, err := tv.svc.PayShared(ctx, partnerA, "", 100); err != ErrNilRecipient {
		t.Fatalf("expected nil recipient, got %v", err)
	}
	if _, err := tv.svc.PayShared(ctx, partnerA, merchant, 0); err != ErrInvalidAmount {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := tv.svc.PayShared(ctx, "stranger", merchant, 100); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestSeparationIsOneWayAndGatesSharedPayments(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)
	tv.mustDeposit(t, partnerB, 1_000)

	if err := tv.svc.TriggerSeparation(ctx, partnerB); err != nil {
		t.Fatalf("trigger separation: %v", err)
	}

	state, _ := tv.svc.State(ctx)
	if state != StateSeparated {
		t.Fatalf("expected separated state, got %s", state)
	}

	if _, err := tv.svc.PayShared(ctx, partnerA, merchant, 100); err != ErrSeparated {
		t.Fatalf("expected separated error, got %v", err)
	}
	if err := tv.svc.TriggerSeparation(ctx, partnerA); err != ErrSeparated {
		t.Fatalf("expected separated error on re-trigger, got %v", err)
	}
	if err := tv.svc.TriggerSeparation(ctx, "stranger"); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	// Individual rights survive separation.
	tv.mustDeposit(t, partnerA, 500)
	if _, err := tv.svc.Withdraw(ctx, partnerB, 400); err != nil {
		t.Fatalf("withdraw after separation: %v", err)
	}
}

func TestConservationAcrossOperationSequence(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	check := func(step string) {
		t.Helper()
		assets, err := tv.svc.TotalAssets(ctx)
		if err != nil {
			t.Fatalf("%s: total assets: %v", step, err)
		}
		valA, err := tv.svc.EstimatedBalance(ctx, partnerA)
		if err != nil {
			t.Fatalf("%s: estimate a: %v", step, err)
		}
		valB, err := tv.svc.EstimatedBalance(ctx, partnerB)
		if err != nil {
			t.Fatalf("%s: estimate b: %v", step, err)
		}
		if valA.Shares < 0 || valB.Shares < 0 {
			t.Fatalf("%s: negative shares a=%d b=%d", step, valA.Shares, valB.Shares)
		}
		if sum := valA.EstimatedBalance + valB.EstimatedBalance; sum > assets {
			t.Fatalf("%s: value created: %d > %d", step, sum, assets)
		}
	}

	tv.mustDeposit(t, partnerA, 7_777)
	check("deposit a")
	tv.pool.Accrue(391)
	check("accrual")
	tv.mustDeposit(t, partnerB, 3_333)
	check("deposit b")
	if _, err := tv.svc.PayShared(ctx, partnerA, merchant, 999); err != nil {
		t.Fatalf("pay shared: %v", err)
	}
	check("odd shared payment")
	if _, err := tv.svc.Withdraw(ctx, partnerB, 1_234); err != nil {
		t.Fatalf("withdraw b: %v", err)
	}
	check("withdraw b")
	tv.pool.Accrue(57)
	check("second accrual")
	if _, err := tv.svc.Withdraw(ctx, partnerA, 2_500); err != nil {
		t.Fatalf("withdraw a: %v", err)
	}
	check("withdraw a")
}

func TestJournalRecordsEveryMutation(t *testing.T) {
	tv := newTestVault(t)
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)
	tv.mustDeposit(t, partnerB, 1_000)
	if _, err := tv.svc.PayShared(ctx, partnerA, merchant, 300); err != nil {
		t.Fatalf("pay shared: %v", err)
	}
	if _, err := tv.svc.Withdraw(ctx, partnerB, 200); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := tv.svc.TriggerSeparation(ctx, partnerA); err != nil {
		t.Fatalf("separation: %v", err)
	}

	entries, err := tv.journal.List(ctx)
	if err != nil {
		t.Fatalf("list journal: %v", err)
	}

	kinds := make([]string, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	expected := []string{
		journal.KindDeposit, journal.KindDeposit, journal.KindSharedPayment,
		journal.KindWithdraw, journal.KindSeparation,
	}
	if len(kinds) != len(expected) {
		t.Fatalf("expected %d entries, got %v", len(expected), kinds)
	}
	for i := range expected {
		if kinds[i] != expected[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, expected[i], kinds[i])
		}
	}

	// Share deltas in the shared payment cover both partners.
	payment := entries[2]
	if payment.ShareDeltaA >= 0 || payment.ShareDeltaB >= 0 {
		t.Fatalf("shared payment deltas should be negative: %d/%d", payment.ShareDeltaA, payment.ShareDeltaB)
	}
}

// brokenRecorder accepts a fixed number of appends, then fails every write.
type brokenRecorder struct {
	journal.Recorder
	allow int
}

var errAuditDown = errors.New("audit store unavailable")

func (r *brokenRecorder) Append(ctx context.Context, e journal.Entry) error {
	if r.allow <= 0 {
		return errAuditDown
	}
	r.allow--
	return r.Recorder.Append(ctx, e)
}

func TestDepositUnwoundWhenAuditWriteFails(t *testing.T) {
	tv := newTestVaultWithRecorder(t, &brokenRecorder{Recorder: journal.NewInMemory()})
	ctx := context.Background()

	if _, err := tv.svc.Deposit(ctx, partnerA, 1_000); !errors.Is(err, errAuditDown) {
		t.Fatalf("expected audit failure, got %v", err)
	}

	balance, _ := tv.ledger.BalanceOf(ctx, partnerA)
	if balance != 0 {
		t.Fatalf("unrecorded deposit left %d shares", balance)
	}
	assets, _ := tv.svc.TotalAssets(ctx)
	if assets != 0 {
		t.Fatalf("unrecorded deposit left %d assets in the vault", assets)
	}
}

func TestWithdrawUnwoundWhenAuditWriteFails(t *testing.T) {
	tv := newTestVaultWithRecorder(t, &brokenRecorder{Recorder: journal.NewInMemory(), allow: 1})
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)

	if _, err := tv.svc.Withdraw(ctx, partnerA, 200); !errors.Is(err, errAuditDown) {
		t.Fatalf("expected audit failure, got %v", err)
	}

	balance, _ := tv.ledger.BalanceOf(ctx, partnerA)
	if balance != 1_000 {
		t.Fatalf("unrecorded withdrawal mutated shares: %d", balance)
	}
	assets, _ := tv.svc.TotalAssets(ctx)
	if assets != 1_000 {
		t.Fatalf("unrecorded withdrawal moved assets: %d", assets)
	}
}

func TestPaySharedUnwoundWhenAuditWriteFails(t *testing.T) {
	tv := newTestVaultWithRecorder(t, &brokenRecorder{Recorder: journal.NewInMemory(), allow: 2})
	ctx := context.Background()

	tv.mustDeposit(t, partnerA, 1_000)
	tv.mustDeposit(t, partnerB, 1_000)

	if _, err := tv.svc.PayShared(ctx, partnerA, merchant, 400); !errors.Is(err, errAuditDown) {
		t.Fatalf("expected audit failure, got %v", err)
	}

	balanceA, _ := tv.ledger.BalanceOf(ctx, partnerA)
	balanceB, _ := tv.ledger.BalanceOf(ctx, partnerB)
	if balanceA != 1_000 || balanceB != 1_000 {
		t.Fatalf("unrecorded payment mutated shares: a=%d b=%d", balanceA, balanceB)
	}
	assets, _ := tv.svc.TotalAssets(ctx)
	if assets != 2_000 {
		t.Fatalf("unrecorded payment moved assets: %d", assets)
	}
	entries, _ := tv.journal.List(ctx)
	if len(entries) != 2 {
		t.Fatalf("expected only the two deposit entries, got %d", len(entries))
	}
}

func TestSeparationUnwoundWhenAuditWriteFails(t *testing.T) {
	tv := newTestVaultWithRecorder(t, &brokenRecorder{Recorder: journal.NewInMemory()})
	ctx := context.Background()

	if err := tv.svc.TriggerSeparation(ctx, partnerA); !errors.Is(err, errAuditDown) {
		t.Fatalf("expected audit failure, got %v", err)
	}

	state, _ := tv.svc.State(ctx)
	if state != StateActive {
		t.Fatalf("unrecorded separation left state %s", state)
	}
}

// reentrantCustody calls back into the vault mid-transfer the way a hostile
// external rail might.
type reentrantCustody struct {
	*custody.Simulator
	svc     *Service
	attempt error
}

func (r *reentrantCustody) PullIn(ctx context.Context, from string, amount int64) error {
	if r.svc != nil {
		_, r.attempt = r.svc.Withdraw(ctx, from, 1)
	}
	return r.Simulator.PullIn(ctx, from, amount)
}

func TestReentrantMutationIsRejected(t *testing.T) {
	gate, _ := membership.New(partnerA, partnerB)
	led := shares.NewInMemory()
	hostile := &reentrantCustody{Simulator: custody.NewSimulator()}
	pool := venue.NewSimulator(hostile.Simulator)

	svc, err := NewService(context.Background(), gate, led, hostile, pool,
		NewMemoryStateStore(), journal.NewInMemory(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	hostile.svc = svc

	if _, err := svc.Deposit(context.Background(), partnerA, 1_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !errors.Is(hostile.attempt, ErrOperationInProgress) {
		t.Fatalf("expected re-entrant withdraw to be rejected, got %v", hostile.attempt)
	}
}
