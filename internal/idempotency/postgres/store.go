package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pollInterval paces the wait for another caller's in-flight result.
const pollInterval = 100 * time.Millisecond

// Store is the durable idempotency store. The claim is an insert racing on
// the primary key, so exactly one of any number of concurrent callers wins.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Claim implements ports.IdempotencyStore. Losing callers poll for the
// winner's result until it lands or their context expires.
func (s *Store) Claim(ctx context.Context, key string) (ports.Claim, error) {
	insert := `
		INSERT INTO idempotency_keys (key, created_at)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, insert, key, time.Now().UTC())
	if err != nil {
		return ports.Claim{}, fmt.Errorf("insert idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return ports.Claim{Winner: true}, nil
	}

	return s.awaitResult(ctx, key)
}

func (s *Store) awaitResult(ctx context.Context, key string) (ports.Claim, error) {
	query := `SELECT result, resolved FROM idempotency_keys WHERE key = $1`

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var (
			result   []byte
			resolved bool
		)
		err := s.pool.QueryRow(ctx, query, key).Scan(&result, &resolved)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return ports.Claim{}, fmt.Errorf("select idempotency key: %w", err)
		}
		if resolved {
			return ports.Claim{Winner: false, Result: result}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ports.Claim{}, fmt.Errorf("%w: %v", ports.ErrResultPending, ctx.Err())
		}
	}
}

// AttachResult implements ports.IdempotencyStore.
func (s *Store) AttachResult(ctx context.Context, key string, result []byte) error {
	update := `
		UPDATE idempotency_keys
		SET result = $2, resolved = TRUE
		WHERE key = $1 AND resolved = FALSE
	`

	tag, err := s.pool.Exec(ctx, update, key, result)
	if err != nil {
		return fmt.Errorf("update idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var resolved bool
	err = s.pool.QueryRow(ctx, `SELECT resolved FROM idempotency_keys WHERE key = $1`, key).Scan(&resolved)
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotClaimed
	}
	if err != nil {
		return fmt.Errorf("select idempotency key: %w", err)
	}
	if resolved {
		return ports.ErrAlreadyResolved
	}
	return fmt.Errorf("attach result for key %s: no row updated", key)
}
