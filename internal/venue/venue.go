package venue

import (
	"context"
	"errors"
)

// ErrInsufficientReceipt occurs when a withdrawal exceeds the receipt-asset
// balance held at the venue.
var ErrInsufficientReceipt = errors.New("insufficient receipt balance")

// Venue is the adapter over the external lending pool. Supplied base assets
// earn yield passively; the receipt balance is observed, never written, by
// the vault.
type Venue interface {
	Supply(ctx context.Context, amount int64) error
	Withdraw(ctx context.Context, amount int64) (int64, error)
	ReceiptBalance(ctx context.Context) (int64, error)
}
