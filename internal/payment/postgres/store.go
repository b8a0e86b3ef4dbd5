package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the durable payment-intent store. Amounts are persisted as
// integer minor units plus the currency code; no float ever touches money.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, intent ports.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents
			(id, order_ref, currency, authorized_cents, captured_cents, refunded_cents, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		intent.ID,
		intent.OrderRef,
		intent.Authorized.Currency(),
		intent.Authorized.Amount(),
		intent.Captured.Amount(),
		intent.Refunded.Amount(),
		intent.State,
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*ports.PaymentIntent, error) {
	query := `
		SELECT id, order_ref, currency, authorized_cents, captured_cents, refunded_cents, state, created_at, updated_at
		FROM payment_intents
		WHERE id = $1
	`

	var (
		intent     ports.PaymentIntent
		currency   string
		authorized int64
		captured   int64
		refunded   int64
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&intent.ID,
		&intent.OrderRef,
		&currency,
		&authorized,
		&captured,
		&refunded,
		&intent.State,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrIntentNotFound
		}
		return nil, fmt.Errorf("select payment intent: %w", err)
	}

	if intent.Authorized, err = money.New(authorized, currency); err != nil {
		return nil, fmt.Errorf("decode authorized amount: %w", err)
	}
	if intent.Captured, err = money.New(captured, currency); err != nil {
		return nil, fmt.Errorf("decode captured amount: %w", err)
	}
	if intent.Refunded, err = money.New(refunded, currency); err != nil {
		return nil, fmt.Errorf("decode refunded amount: %w", err)
	}

	return &intent, nil
}

func (s *Store) Update(ctx context.Context, intent ports.PaymentIntent) error {
	query := `
		UPDATE payment_intents
		SET captured_cents = $2, refunded_cents = $3, state = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		intent.ID,
		intent.Captured.Amount(),
		intent.Refunded.Amount(),
		intent.State,
		intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrIntentNotFound
	}
	return nil
}
