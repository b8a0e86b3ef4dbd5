package ports

import "context"

// EventBus defines the contract for publishing checkout lifecycle events.
// CheckoutFailed carries the idempotency key as its reference, since a
// failed checkout may never have produced an order. CompensationFailed is
// the escalation channel for compensating actions that themselves failed
// and need manual reconciliation.
type EventBus interface {
	PublishOrderPlaced(ctx context.Context, orderID string) error
	PublishCheckoutFailed(ctx context.Context, ref string, reason string) error
	PublishCompensationFailed(ctx context.Context, orderRef string, detail string) error
}
