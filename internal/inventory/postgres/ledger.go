package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger is the durable inventory ledger. Row locks on the inventory table
// serialize mutation per SKU; the conditional UPDATE makes reserve
// linearizable without application-side locking.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// SetStock registers or resets the stock level for a SKU.
func (l *Ledger) SetStock(ctx context.Context, sku string, available int64) error {
	query := `
		INSERT INTO inventory (sku, available, reserved)
		VALUES ($1, $2, 0)
		ON CONFLICT (sku) DO UPDATE SET available = $2, reserved = 0
	`

	if _, err := l.pool.Exec(ctx, query, sku, available); err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

// Stock returns the current (available, reserved) pair for a SKU.
func (l *Ledger) Stock(ctx context.Context, sku string) (available, reserved int64, err error) {
	query := `SELECT available, reserved FROM inventory WHERE sku = $1`

	err = l.pool.QueryRow(ctx, query, sku).Scan(&available, &reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("%w: %s", ports.ErrUnknownSKU, sku)
		}
		return 0, 0, fmt.Errorf("select stock: %w", err)
	}
	return available, reserved, nil
}

// Reserve implements ports.InventoryLedger.
func (l *Ledger) Reserve(ctx context.Context, sku string, qty int64) (ports.ReservationToken, error) {
	if qty <= 0 {
		return ports.ReservationToken{}, fmt.Errorf("quantity must be positive, got %d", qty)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return ports.ReservationToken{}, fmt.Errorf("begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	update := `
		UPDATE inventory
		SET available = available - $2, reserved = reserved + $2
		WHERE sku = $1 AND available >= $2
	`

	tag, err := tx.Exec(ctx, update, sku, qty)
	if err != nil {
		return ports.ReservationToken{}, fmt.Errorf("reserve stock: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var available int64
		err := tx.QueryRow(ctx, `SELECT available FROM inventory WHERE sku = $1`, sku).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return ports.ReservationToken{}, fmt.Errorf("%w: %s", ports.ErrUnknownSKU, sku)
		}
		if err != nil {
			return ports.ReservationToken{}, fmt.Errorf("select stock: %w", err)
		}
		return ports.ReservationToken{}, &ports.OutOfStockError{SKU: sku, Requested: qty, Available: available}
	}

	token := ports.ReservationToken{
		ID:        uuid.New().String(),
		SKU:       sku,
		Quantity:  qty,
		CreatedAt: time.Now().UTC(),
	}

	insert := `
		INSERT INTO inventory_reservations (id, sku, qty, status, created_at)
		VALUES ($1, $2, $3, 'reserved', $4)
	`

	if _, err := tx.Exec(ctx, insert, token.ID, token.SKU, token.Quantity, token.CreatedAt); err != nil {
		return ports.ReservationToken{}, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ports.ReservationToken{}, fmt.Errorf("commit reserve: %w", err)
	}

	return token, nil
}

// Commit implements ports.InventoryLedger.
func (l *Ledger) Commit(ctx context.Context, token ports.ReservationToken) error {
	return l.transition(ctx, token, "committed", `
		UPDATE inventory
		SET reserved = reserved - $2
		WHERE sku = $1 AND reserved >= $2
	`)
}

// Release implements ports.InventoryLedger.
func (l *Ledger) Release(ctx context.Context, token ports.ReservationToken) error {
	return l.transition(ctx, token, "released", `
		UPDATE inventory
		SET available = available + $2, reserved = reserved - $2
		WHERE sku = $1 AND reserved >= $2
	`)
}

func (l *Ledger) transition(ctx context.Context, token ports.ReservationToken, to, stockUpdate string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", to, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	flip := `
		UPDATE inventory_reservations
		SET status = $2
		WHERE id = $1 AND status = 'reserved'
	`

	tag, err := tx.Exec(ctx, flip, token.ID, to)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM inventory_reservations WHERE id = $1`, token.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ports.ErrUnknownToken
		}
		if err != nil {
			return fmt.Errorf("select reservation: %w", err)
		}
		switch status {
		case "committed":
			return ports.ErrAlreadyCommitted
		case "released":
			return ports.ErrAlreadyReleased
		default:
			return fmt.Errorf("%w: reservation %s in state %s", ports.ErrLedgerInconsistent, token.ID, status)
		}
	}

	tag, err = tx.Exec(ctx, stockUpdate, token.SKU, token.Quantity)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sku %s reserved below qty %d", ports.ErrLedgerInconsistent, token.SKU, token.Quantity)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", to, err)
	}
	return nil
}

// ReleaseExpired returns stock held by reservations older than the cutoff.
// It is intended for a background scheduler. Returns the number of
// reservations released.
func (l *Ledger) ReleaseExpired(ctx context.Context, olderThan time.Time) (int, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin release expired: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	expire := `
		UPDATE inventory_reservations
		SET status = 'released'
		WHERE status = 'reserved' AND created_at < $1
		RETURNING sku, qty
	`

	rows, err := tx.Query(ctx, expire, olderThan)
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}

	type delta struct {
		sku string
		qty int64
	}
	var deltas []delta
	for rows.Next() {
		var d delta
		if err := rows.Scan(&d.sku, &d.qty); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired reservation: %w", err)
		}
		deltas = append(deltas, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate expired reservations: %w", err)
	}

	for _, d := range deltas {
		update := `
			UPDATE inventory
			SET available = available + $2, reserved = reserved - $2
			WHERE sku = $1 AND reserved >= $2
		`
		tag, err := tx.Exec(ctx, update, d.sku, d.qty)
		if err != nil {
			return 0, fmt.Errorf("return expired stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return 0, fmt.Errorf("%w: sku %s reserved below expired qty %d", ports.ErrLedgerInconsistent, d.sku, d.qty)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit release expired: %w", err)
	}
	return len(deltas), nil
}
