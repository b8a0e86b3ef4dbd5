package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dejobratic/checkout/internal/checkout/ports"
)

type entry struct {
	done     chan struct{}
	result   []byte
	resolved bool
}

// Store is an in-memory idempotency store. The first caller to claim a key
// wins; concurrent callers with the same key block on the winner's result
// until it is attached or their context expires.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates a new in-memory idempotency store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Claim implements ports.IdempotencyStore.
func (s *Store) Claim(ctx context.Context, key string) (ports.Claim, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.entries[key] = &entry{done: make(chan struct{})}
		s.mu.Unlock()
		return ports.Claim{Winner: true}, nil
	}
	s.mu.Unlock()

	select {
	case <-e.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		result := make([]byte, len(e.result))
		copy(result, e.result)
		return ports.Claim{Winner: false, Result: result}, nil
	case <-ctx.Done():
		return ports.Claim{}, fmt.Errorf("%w: %v", ports.ErrResultPending, ctx.Err())
	}
}

// AttachResult implements ports.IdempotencyStore. The result is terminal:
// keys are never updated in place once resolved.
func (s *Store) AttachResult(_ context.Context, key string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return ports.ErrNotClaimed
	}
	if e.resolved {
		return ports.ErrAlreadyResolved
	}

	e.result = make([]byte, len(result))
	copy(e.result, result)
	e.resolved = true
	close(e.done)
	return nil
}
