package custody

import (
	"context"
	"errors"
)

// ErrInsufficientIdle occurs when a push-out exceeds the idle balance held in
// custody.
var ErrInsufficientIdle = errors.New("insufficient idle balance")

// Custody moves the base asset in and out of the vault's direct holding. It
// tracks nothing beyond the idle balance; ownership accounting lives in the
// share ledger.
type Custody interface {
	PullIn(ctx context.Context, from string, amount int64) error
	PushOut(ctx context.Context, to string, amount int64) error
	IdleBalance(ctx context.Context) (int64, error)
}
