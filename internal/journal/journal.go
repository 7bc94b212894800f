package journal

import (
	"context"
	"time"
)

const (
	// KindDeposit records an individual deposit.
	KindDeposit = "deposit"
	// KindWithdraw records an individual withdrawal.
	KindWithdraw = "withdraw"
	// KindSharedPayment records a 50/50 shared expense payment.
	KindSharedPayment = "shared_payment"
	// KindSeparation records the one-way relationship transition.
	KindSeparation = "separation"
)

// Entry is one append-only audit record. Share deltas are signed: mints are
// positive, burns negative.
type Entry struct {
	ID          string
	Kind        string
	Actor       string
	Recipient   string
	Amount      int64
	ShareDeltaA int64
	ShareDeltaB int64
	RecordedAt  time.Time
}

// Recorder persists the timestamp-ordered audit trail external observers
// rely on. Entries are written only after an operation fully succeeds.
type Recorder interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
}
