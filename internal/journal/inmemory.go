package journal

import (
	"context"
	"sync"
)

type inMemoryRecorder struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemory creates an in-memory audit trail for tests and dev mode.
func NewInMemory() Recorder {
	return &inMemoryRecorder{}
}

func (r *inMemoryRecorder) Append(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *inMemoryRecorder) List(_ context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}
