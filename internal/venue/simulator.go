package venue

import (
	"context"
	"sync"

	"github.com/jointvault/jointvault/internal/custody"
)

const venueAccount = "venue:lending-pool"

// Simulator models the lending pool against a simulated custodian: Supply
// moves idle custody funds into the pool, Withdraw moves them back, and
// Accrue grows the receipt balance the way external interest would.
type Simulator struct {
	mu        sync.RWMutex
	custodian *custody.Simulator
	receipt   int64
}

// NewSimulator constructs a simulated lending pool over the given custodian.
func NewSimulator(custodian *custody.Simulator) *Simulator {
	return &Simulator{custodian: custodian}
}

// Supply moves base assets from idle custody into the pool.
func (s *Simulator) Supply(ctx context.Context, amount int64) error {
	if err := s.custodian.PushOut(ctx, venueAccount, amount); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipt += amount
	return nil
}

// Withdraw redeems receipt assets back into idle custody and reports the
// amount actually returned.
func (s *Simulator) Withdraw(ctx context.Context, amount int64) (int64, error) {
	s.mu.Lock()
	if s.receipt < amount {
		s.mu.Unlock()
		return 0, ErrInsufficientReceipt
	}
	s.receipt -= amount
	s.mu.Unlock()

	if err := s.custodian.PullIn(ctx, venueAccount, amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// ReceiptBalance reports the vault's current claim on the pool.
func (s *Simulator) ReceiptBalance(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receipt, nil
}

// Accrue grows the receipt balance to model interest earned at the venue.
// Test helper; the real pool accrues on its own.
func (s *Simulator) Accrue(amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipt += amount
}
