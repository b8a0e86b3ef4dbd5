package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/kafka"
	"github.com/dejobratic/checkout/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishOrderPlaced(ctx context.Context, orderID string) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishOrderPlaced")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", orderID),
		attribute.String("event.type", "order.placed"),
		attribute.String("topic", "order.placed"),
	)

	start := time.Now()
	err := e.bus.PublishOrderPlaced(ctx, orderID)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, "order.placed", duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) PublishCheckoutFailed(ctx context.Context, ref string, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishCheckoutFailed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("checkout.ref", ref),
		attribute.String("event.type", "checkout.failed"),
		attribute.String("topic", "checkout.failed"),
		attribute.String("failure.reason", reason),
	)

	start := time.Now()
	err := e.bus.PublishCheckoutFailed(ctx, ref, reason)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, "checkout.failed", duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) PublishCompensationFailed(ctx context.Context, orderRef string, detail string) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishCompensationFailed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.ref", orderRef),
		attribute.String("event.type", "compensation.failed"),
		attribute.String("topic", "compensation.failed"),
		attribute.String("failure.detail", detail),
	)

	start := time.Now()
	err := e.bus.PublishCompensationFailed(ctx, orderRef, detail)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, "compensation.failed", duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
