package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/google/uuid"
)

const (
	// DefaultReservationTTL bounds how long an uncommitted reservation may
	// hold stock before the reaper returns it to the available pool.
	DefaultReservationTTL = 5 * time.Minute

	reaperInterval = 30 * time.Second
)

type reservationState string

const (
	stateReserved  reservationState = "reserved"
	stateCommitted reservationState = "committed"
	stateReleased  reservationState = "released"
)

type skuRecord struct {
	mu        sync.Mutex
	available int64
	reserved  int64
}

type reservation struct {
	token ports.ReservationToken
	state reservationState
}

// Ledger is an in-memory inventory ledger. Stock mutation is serialized at
// SKU granularity: each record carries its own mutex, so contention on one
// SKU never blocks reservations against another.
type Ledger struct {
	skuMu sync.RWMutex
	skus  map[string]*skuRecord

	resMu        sync.Mutex
	reservations map[string]*reservation

	ttl        time.Duration
	stopReaper chan struct{}
	wg         sync.WaitGroup
}

// NewLedger constructs a ledger with the given reservation TTL and starts
// the background reaper that releases stale reservations.
func NewLedger(ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	l := &Ledger{
		skus:         make(map[string]*skuRecord),
		reservations: make(map[string]*reservation),
		ttl:          ttl,
		stopReaper:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.reaperLoop()

	return l
}

// SetStock registers or resets the stock level for a SKU.
func (l *Ledger) SetStock(sku string, available int64) {
	l.skuMu.Lock()
	defer l.skuMu.Unlock()
	l.skus[sku] = &skuRecord{available: available}
}

// Stock returns the current (available, reserved) pair for a SKU.
func (l *Ledger) Stock(sku string) (available, reserved int64, err error) {
	rec, err := l.record(sku)
	if err != nil {
		return 0, 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.available, rec.reserved, nil
}

// Reserve implements ports.InventoryLedger.
func (l *Ledger) Reserve(_ context.Context, sku string, qty int64) (ports.ReservationToken, error) {
	if qty <= 0 {
		return ports.ReservationToken{}, fmt.Errorf("quantity must be positive, got %d", qty)
	}

	rec, err := l.record(sku)
	if err != nil {
		return ports.ReservationToken{}, err
	}

	rec.mu.Lock()
	if rec.available < qty {
		available := rec.available
		rec.mu.Unlock()
		return ports.ReservationToken{}, &ports.OutOfStockError{SKU: sku, Requested: qty, Available: available}
	}
	rec.available -= qty
	rec.reserved += qty
	rec.mu.Unlock()

	token := ports.ReservationToken{
		ID:        uuid.New().String(),
		SKU:       sku,
		Quantity:  qty,
		CreatedAt: time.Now().UTC(),
	}

	l.resMu.Lock()
	l.reservations[token.ID] = &reservation{token: token, state: stateReserved}
	l.resMu.Unlock()

	return token, nil
}

// Commit implements ports.InventoryLedger. Available was already
// decremented at reserve time; committing only retires the reserved units.
func (l *Ledger) Commit(_ context.Context, token ports.ReservationToken) error {
	if err := l.transition(token.ID, stateCommitted); err != nil {
		return err
	}

	rec, err := l.record(token.SKU)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.reserved < token.Quantity {
		return fmt.Errorf("%w: sku %s reserved %d below committed qty %d",
			ports.ErrLedgerInconsistent, token.SKU, rec.reserved, token.Quantity)
	}
	rec.reserved -= token.Quantity
	return nil
}

// Release implements ports.InventoryLedger.
func (l *Ledger) Release(_ context.Context, token ports.ReservationToken) error {
	if err := l.transition(token.ID, stateReleased); err != nil {
		return err
	}
	return l.returnStock(token)
}

// Close stops the background reaper and waits for it to finish.
func (l *Ledger) Close() error {
	close(l.stopReaper)
	l.wg.Wait()
	return nil
}

// transition flips a reservation out of the reserved state. Holding resMu
// across the state check and the flip makes double-commit and
// commit-after-release impossible.
func (l *Ledger) transition(tokenID string, to reservationState) error {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	res, ok := l.reservations[tokenID]
	if !ok {
		return ports.ErrUnknownToken
	}
	switch res.state {
	case stateCommitted:
		return ports.ErrAlreadyCommitted
	case stateReleased:
		return ports.ErrAlreadyReleased
	}
	res.state = to
	return nil
}

func (l *Ledger) returnStock(token ports.ReservationToken) error {
	rec, err := l.record(token.SKU)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.reserved < token.Quantity {
		return fmt.Errorf("%w: sku %s reserved %d below released qty %d",
			ports.ErrLedgerInconsistent, token.SKU, rec.reserved, token.Quantity)
	}
	rec.reserved -= token.Quantity
	rec.available += token.Quantity
	return nil
}

func (l *Ledger) record(sku string) (*skuRecord, error) {
	l.skuMu.RLock()
	defer l.skuMu.RUnlock()
	rec, ok := l.skus[sku]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnknownSKU, sku)
	}
	return rec, nil
}

func (l *Ledger) reaperLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.releaseExpired()
		case <-l.stopReaper:
			return
		}
	}
}

func (l *Ledger) releaseExpired() {
	cutoff := time.Now().UTC().Add(-l.ttl)

	var expired []ports.ReservationToken
	l.resMu.Lock()
	for _, res := range l.reservations {
		if res.state == stateReserved && res.token.CreatedAt.Before(cutoff) {
			res.state = stateReleased
			expired = append(expired, res.token)
		}
	}
	l.resMu.Unlock()

	for _, token := range expired {
		// The token was flipped to released above, so this cannot race a
		// concurrent Commit or Release on the same token.
		_ = l.returnStock(token)
	}
}
