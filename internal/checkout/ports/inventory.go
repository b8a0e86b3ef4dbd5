package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReservationToken is a single-use handle for a provisional inventory
// deduction. CreatedAt supports staleness detection: reservations held past
// the configured TTL are eligible for background release.
type ReservationToken struct {
	ID        string
	SKU       string
	Quantity  int64
	CreatedAt time.Time
}

// OutOfStockError names the SKU whose available stock could not cover a
// reservation request.
type OutOfStockError struct {
	SKU       string
	Requested int64
	Available int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: sku %s has %d available, %d requested", e.SKU, e.Available, e.Requested)
}

var (
	// ErrUnknownSKU is returned when no inventory record exists for a SKU.
	ErrUnknownSKU = errors.New("unknown sku")
	// ErrUnknownToken is returned when a token does not reference a known reservation.
	ErrUnknownToken = errors.New("unknown reservation token")
	// ErrAlreadyCommitted is returned when a token was already committed.
	ErrAlreadyCommitted = errors.New("reservation already committed")
	// ErrAlreadyReleased is returned when a token was already released.
	ErrAlreadyReleased = errors.New("reservation already released")
	// ErrLedgerInconsistent signals a violated available+reserved invariant.
	// It is fatal: the request must abort and operators must be alerted,
	// never silently corrected.
	ErrLedgerInconsistent = errors.New("inventory ledger inconsistent")
)

// InventoryLedger tracks available and reserved stock per SKU. Every
// operation is atomic with respect to other operations on the same SKU:
// concurrent reserves must never oversell, whatever the interleaving.
type InventoryLedger interface {
	// Reserve atomically moves qty units from available to reserved,
	// failing with an OutOfStockError when available < qty.
	Reserve(ctx context.Context, sku string, qty int64) (ReservationToken, error)

	// Commit converts a reservation into a permanent deduction. A second
	// commit of the same token fails with ErrAlreadyCommitted.
	Commit(ctx context.Context, token ReservationToken) error

	// Release reverses an uncommitted reservation, returning its units to
	// available. Fails with ErrAlreadyCommitted or ErrAlreadyReleased when
	// the token left the reserved state.
	Release(ctx context.Context, token ReservationToken) error
}
