package vault

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateStore persists the relationship state flag.
type StateStore interface {
	Get(ctx context.Context) (State, error)
	Set(ctx context.Context, state State) error
}

type memoryStateStore struct {
	mu    sync.RWMutex
	state State
}

// NewMemoryStateStore constructs an in-memory state store starting ACTIVE.
func NewMemoryStateStore() StateStore {
	return &memoryStateStore{state: StateActive}
}

func (s *memoryStateStore) Get(_ context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

func (s *memoryStateStore) Set(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// PostgresStateStore persists the relationship state in a single-row table.
type PostgresStateStore struct {
	db *pgxpool.Pool
}

// NewPostgresStateStore builds a state store backed by PostgreSQL.
func NewPostgresStateStore(db *pgxpool.Pool) *PostgresStateStore {
	return &PostgresStateStore{db: db}
}

// Get reads the current state, defaulting to ACTIVE when the row is absent.
func (s *PostgresStateStore) Get(ctx context.Context) (State, error) {
	var state string
	err := s.db.QueryRow(ctx, `SELECT state FROM vault_state WHERE id = 1`).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return StateActive, nil
	}
	if err != nil {
		return "", err
	}
	return State(state), nil
}

// Set upserts the state flag.
func (s *PostgresStateStore) Set(ctx context.Context, state State) error {
	_, err := s.db.Exec(ctx, `INSERT INTO vault_state (id, state) VALUES (1, $1)
        ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state`, string(state))
	return err
}
