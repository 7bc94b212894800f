package shares

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientShares occurs when a burn requests more shares than the
	// participant currently holds.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrOverflow indicates a mint would push a share balance or the total
	// supply past the representable range.
	ErrOverflow = errors.New("share arithmetic overflow")

	// ErrUnknownParticipant indicates the participant was never registered
	// with the ledger.
	ErrUnknownParticipant = errors.New("unknown participant")
)

// Ledger is the sole source of truth for proportional ownership. It tracks a
// non-negative share balance per participant plus the aggregate supply, and
// only ever changes through Mint and Burn.
type Ledger interface {
	EnsureParticipant(ctx context.Context, participant string) error
	Mint(ctx context.Context, participant string, amount int64) error
	Burn(ctx context.Context, participant string, amount int64) error
	BalanceOf(ctx context.Context, participant string) (int64, error)
	TotalSupply(ctx context.Context) (int64, error)
}
