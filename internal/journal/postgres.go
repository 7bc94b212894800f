package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder persists audit entries in PostgreSQL.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder builds a recorder backed by PostgreSQL.
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Append inserts one audit entry.
func (r *PostgresRecorder) Append(ctx context.Context, entry Entry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		id = uuid.New()
	}
	_, err = r.db.Exec(ctx, `INSERT INTO vault_journal
        (id, kind, actor, recipient, amount, share_delta_a, share_delta_b, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, entry.Kind, entry.Actor, entry.Recipient, entry.Amount,
		entry.ShareDeltaA, entry.ShareDeltaB, entry.RecordedAt.UTC())
	return err
}

// List returns all entries in recorded order.
func (r *PostgresRecorder) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, kind, actor, recipient, amount,
        share_delta_a, share_delta_b, recorded_at
        FROM vault_journal ORDER BY recorded_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var id uuid.UUID
		var recordedAt time.Time
		if err := rows.Scan(&id, &e.Kind, &e.Actor, &e.Recipient, &e.Amount,
			&e.ShareDeltaA, &e.ShareDeltaB, &recordedAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.RecordedAt = recordedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
