package shares

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists per-participant share balances in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed share ledger.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureParticipant guarantees a balance row exists for the participant.
func (l *PostgresLedger) EnsureParticipant(ctx context.Context, participant string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO partner_shares (participant, shares) VALUES ($1, 0)
        ON CONFLICT (participant) DO NOTHING`, participant)
	return err
}

// Mint increases a participant's balance under a row lock so the overflow
// check and the write observe the same state.
func (l *PostgresLedger) Mint(ctx context.Context, participant string, amount int64) error {
	if amount < 0 {
		return ErrOverflow
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, err := lockedBalance(ctx, tx, participant)
	if err != nil {
		return err
	}
	total, err := supplyLocked(ctx, tx)
	if err != nil {
		return err
	}
	if balance > math.MaxInt64-amount || total > math.MaxInt64-amount {
		return ErrOverflow
	}

	if _, err := tx.Exec(ctx, `UPDATE partner_shares SET shares = shares + $1 WHERE participant = $2`, amount, participant); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Burn decreases a participant's balance, failing when the balance cannot
// cover the requested amount.
func (l *PostgresLedger) Burn(ctx context.Context, participant string, amount int64) error {
	if amount < 0 {
		return ErrOverflow
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, err := lockedBalance(ctx, tx, participant)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientShares
	}

	if _, err := tx.Exec(ctx, `UPDATE partner_shares SET shares = shares - $1 WHERE participant = $2`, amount, participant); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// BalanceOf returns the participant's current share balance.
func (l *PostgresLedger) BalanceOf(ctx context.Context, participant string) (int64, error) {
	var balance int64
	err := l.db.QueryRow(ctx, `SELECT shares FROM partner_shares WHERE participant = $1`, participant).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownParticipant
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// TotalSupply returns the aggregate share supply across both participants.
func (l *PostgresLedger) TotalSupply(ctx context.Context) (int64, error) {
	var total int64
	if err := l.db.QueryRow(ctx, `SELECT COALESCE(SUM(shares), 0) FROM partner_shares`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func lockedBalance(ctx context.Context, tx pgx.Tx, participant string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT shares FROM partner_shares WHERE participant = $1 FOR UPDATE`, participant).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownParticipant
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func supplyLocked(ctx context.Context, tx pgx.Tx) (int64, error) {
	var total int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(shares), 0) FROM partner_shares`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
