package kafka

import (
	"context"
	"log/slog"
)

// NoopEventBus logs events without sending them to Kafka. Useful for local dev before wiring Kafka.
type NoopEventBus struct{}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (n *NoopEventBus) PublishOrderPlaced(_ context.Context, orderID string) error {
	slog.Debug("event::order_placed", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishCheckoutFailed(_ context.Context, ref string, reason string) error {
	slog.Debug("event::checkout_failed", "ref", ref, "reason", reason)
	return nil
}

func (n *NoopEventBus) PublishCompensationFailed(_ context.Context, orderRef string, detail string) error {
	// Compensation failures need a human, so the no-op bus surfaces
	// them at warn instead of debug.
	slog.Warn("event::compensation_failed", "order_ref", orderRef, "detail", detail)
	return nil
}
