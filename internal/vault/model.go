package vault

import "time"

// State is the relationship state gating shared payments.
type State string

const (
	// StateActive allows both individual and shared operations.
	StateActive State = "active"
	// StateSeparated is terminal: shared payments are disabled, individual
	// deposits and withdrawals remain available.
	StateSeparated State = "separated"
)

// DepositResult describes the outcome of a deposit.
type DepositResult struct {
	Participant  string
	Amount       int64
	MintedShares int64
	CompletedAt  time.Time
}

// WithdrawResult describes the outcome of an individual withdrawal.
type WithdrawResult struct {
	Participant  string
	Amount       int64
	BurnedShares int64
	CompletedAt  time.Time
}

// PaymentResult describes the outcome of a shared payment split between the
// two partners.
type PaymentResult struct {
	Recipient     string
	Amount        int64
	PaidByA       int64
	PaidByB       int64
	BurnedSharesA int64
	BurnedSharesB int64
	CompletedAt   time.Time
}

// Valuation is a point-in-time read of one partner's proportional claim.
type Valuation struct {
	Participant      string
	Shares           int64
	EstimatedBalance int64
	AsOf             time.Time
}
