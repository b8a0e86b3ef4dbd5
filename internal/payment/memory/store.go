package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dejobratic/checkout/internal/checkout/ports"
)

// Store retains payment intents in memory for local development and tests.
type Store struct {
	mu      sync.RWMutex
	intents map[string]ports.PaymentIntent
}

// NewStore creates a new in-memory intent store.
func NewStore() *Store {
	return &Store{intents: make(map[string]ports.PaymentIntent)}
}

// Create stores a new intent.
func (s *Store) Create(_ context.Context, intent ports.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.intents[intent.ID]; exists {
		return fmt.Errorf("intent %s already exists", intent.ID)
	}
	s.intents[intent.ID] = intent
	return nil
}

// Get fetches an intent by id.
func (s *Store) Get(_ context.Context, id string) (*ports.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil, ports.ErrIntentNotFound
	}
	copy := intent
	return &copy, nil
}

// Update overwrites an existing intent.
func (s *Store) Update(_ context.Context, intent ports.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[intent.ID]; !ok {
		return ports.ErrIntentNotFound
	}
	s.intents[intent.ID] = intent
	return nil
}
