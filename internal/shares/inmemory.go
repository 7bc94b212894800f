package shares

import (
	"context"
	"math"
	"sync"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]int64
	total    int64
}

// NewInMemory creates a concurrency-safe in-memory share ledger used by unit
// tests and dev mode.
func NewInMemory() Ledger {
	return &inMemoryLedger{balances: make(map[string]int64)}
}

func (l *inMemoryLedger) EnsureParticipant(_ context.Context, participant string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[participant]; !exists {
		l.balances[participant] = 0
	}
	return nil
}

func (l *inMemoryLedger) Mint(_ context.Context, participant string, amount int64) error {
	if amount < 0 {
		return ErrOverflow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[participant]
	if !ok {
		return ErrUnknownParticipant
	}
	if balance > math.MaxInt64-amount || l.total > math.MaxInt64-amount {
		return ErrOverflow
	}

	l.balances[participant] = balance + amount
	l.total += amount
	return nil
}

func (l *inMemoryLedger) Burn(_ context.Context, participant string, amount int64) error {
	if amount < 0 {
		return ErrOverflow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[participant]
	if !ok {
		return ErrUnknownParticipant
	}
	if balance < amount {
		return ErrInsufficientShares
	}

	l.balances[participant] = balance - amount
	l.total -= amount
	return nil
}

func (l *inMemoryLedger) BalanceOf(_ context.Context, participant string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, ok := l.balances[participant]
	if !ok {
		return 0, ErrUnknownParticipant
	}
	return balance, nil
}

func (l *inMemoryLedger) TotalSupply(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total, nil
}
