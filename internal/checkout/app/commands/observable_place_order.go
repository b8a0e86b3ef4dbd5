package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/checkout/internal/checkout/metrics"
	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*PlaceOrderResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "PlaceOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	var success, replayed bool
	defer func() {
		duration := time.Since(start).Seconds()
		o.metrics.RecordCheckoutDuration(ctx, duration)
		o.metrics.RecordCheckout(ctx, success, replayed)
	}()

	o.logger.InfoContext(ctx, "placing order",
		"customer_email", cmd.CustomerEmail,
		"line_count", len(cmd.Lines),
		"idempotency_key", cmd.IdempotencyKey,
	)

	result, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		var oos *ports.OutOfStockError
		if errors.As(err, &oos) {
			o.metrics.RecordReservationFailed(ctx, oos.SKU)
		}
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "checkout failed",
			"error", err,
			"idempotency_key", cmd.IdempotencyKey,
		)
		return nil, err
	}

	replayed = result.Replayed
	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", result.Order.ID),
		attribute.Int64("order.total_cents", result.Order.Totals.TotalExclVAT.Amount()),
		attribute.String("order.currency", result.Order.Totals.TotalExclVAT.Currency()),
		attribute.Bool("checkout.replayed", result.Replayed),
	)

	o.logger.InfoContext(ctx, "order placed",
		"order_id", result.Order.ID,
		"total_cents", result.Order.Totals.TotalExclVAT.Amount(),
		"replayed", result.Replayed,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return result, nil
}
