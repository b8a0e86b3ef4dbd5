package ports

import (
	"context"
	"errors"
)

// Claim is the outcome of attempting to claim an idempotency key. Exactly
// one caller per key observes Winner; every other caller blocks until the
// winner's result is attached (bounded by the caller's context) and then
// receives that result.
type Claim struct {
	Winner bool
	Result []byte
}

var (
	// ErrNotClaimed is returned when a result is attached to a key that was never claimed.
	ErrNotClaimed = errors.New("idempotency key not claimed")
	// ErrAlreadyResolved is returned when a result is attached twice.
	ErrAlreadyResolved = errors.New("idempotency key already resolved")
	// ErrResultPending is returned when waiting for the winner's result timed out.
	ErrResultPending = errors.New("idempotency result pending")
)

// IdempotencyStore records operation keys so a client-supplied key produces
// at most one effect. Keys are append-only: once claimed they can never be
// claimed again, and a terminal result may be attached exactly once.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (Claim, error)
	AttachResult(ctx context.Context, key string, result []byte) error
}
