package custody

import (
	"context"
	"sync"
)

// Simulator is an in-memory stand-in for the external asset rail. Transfers
// always settle instantly; only the idle balance is tracked.
type Simulator struct {
	mu   sync.RWMutex
	idle int64
}

// NewSimulator constructs an empty simulated custodian.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// PullIn credits the idle balance with funds received from a participant.
func (s *Simulator) PullIn(_ context.Context, _ string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle += amount
	return nil
}

// PushOut debits the idle balance for a transfer to an external party.
func (s *Simulator) PushOut(_ context.Context, _ string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle < amount {
		return ErrInsufficientIdle
	}
	s.idle -= amount
	return nil
}

// IdleBalance reports the base asset currently held outside the yield venue.
func (s *Simulator) IdleBalance(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idle, nil
}
