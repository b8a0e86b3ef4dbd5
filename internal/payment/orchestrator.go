package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/money"
	"github.com/google/uuid"
)

// RetryPolicy bounds the exponential backoff applied to transient gateway
// failures.
type RetryPolicy struct {
	BaseInterval time.Duration
	MaxTries     uint
}

// DefaultRetryPolicy retries a flapping gateway a handful of times starting
// at 200ms and doubling.
var DefaultRetryPolicy = RetryPolicy{
	BaseInterval: 200 * time.Millisecond,
	MaxTries:     4,
}

// Orchestrator enforces the authorize/capture/refund state machine and the
// amount ceilings over whichever Gateway is plugged in. The gateway does
// the network I/O; the orchestrator owns the invariants.
type Orchestrator struct {
	gateway Gateway
	intents IntentStore
	retry   RetryPolicy
	logger  *slog.Logger

	// locks serializes state transitions per intent id.
	locks sync.Map
}

// NewOrchestrator wires required dependencies.
func NewOrchestrator(gateway Gateway, intents IntentStore, retry RetryPolicy, logger *slog.Logger) *Orchestrator {
	if retry.BaseInterval <= 0 {
		retry.BaseInterval = DefaultRetryPolicy.BaseInterval
	}
	if retry.MaxTries == 0 {
		retry.MaxTries = DefaultRetryPolicy.MaxTries
	}
	return &Orchestrator{
		gateway: gateway,
		intents: intents,
		retry:   retry,
		logger:  logger,
	}
}

// Authorize asks the backend to commit funds for the given amount. A
// declined authorization is recorded as a Failed intent and surfaced as
// ErrPaymentDeclined; transient backend failures are retried and surfaced
// as ErrServiceUnavailable once attempts are exhausted.
func (o *Orchestrator) Authorize(ctx context.Context, amount money.Money, orderRef string) (*ports.PaymentIntent, error) {
	if amount.Amount() <= 0 {
		return nil, fmt.Errorf("authorization amount must be positive, got %s", amount)
	}

	intentID, err := backoff.Retry(ctx, func() (string, error) {
		id, err := o.gateway.Authorize(ctx, amount, orderRef, nil)
		if err != nil {
			return "", classify(err)
		}
		return id, nil
	}, o.retryOpts()...)
	if err != nil {
		if errors.Is(err, ErrDeclined) {
			o.recordDeclined(ctx, amount, orderRef)
			return nil, fmt.Errorf("%w: order %s", ports.ErrPaymentDeclined, orderRef)
		}
		return nil, fmt.Errorf("%w: authorize order %s: %v", ports.ErrServiceUnavailable, orderRef, err)
	}

	now := time.Now().UTC()
	intent := ports.PaymentIntent{
		ID:         intentID,
		OrderRef:   orderRef,
		Authorized: amount,
		Captured:   money.Zero(amount.Currency()),
		Refunded:   money.Zero(amount.Currency()),
		State:      ports.PaymentAuthorized,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := o.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("store intent %s: %w", intentID, err)
	}

	o.logger.InfoContext(ctx, "payment authorized",
		"intent_id", intentID,
		"order_ref", orderRef,
		"amount", amount.Amount(),
		"currency", amount.Currency(),
	)

	return &intent, nil
}

// Capture collects previously authorized funds. Capture happens atomically
// once: the intent must be Authorized and the amount must not exceed the
// authorized ceiling.
func (o *Orchestrator) Capture(ctx context.Context, intentID string, amount money.Money) (*ports.PaymentIntent, error) {
	unlock := o.lock(intentID)
	defer unlock()

	intent, err := o.intents.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.State != ports.PaymentAuthorized {
		return nil, fmt.Errorf("%w: capture requires authorized, intent %s is %s", ports.ErrInvalidState, intentID, intent.State)
	}
	if amount.Currency() != intent.Authorized.Currency() {
		return nil, &money.CurrencyMismatchError{Left: amount.Currency(), Right: intent.Authorized.Currency()}
	}
	if intent.Authorized.LessThan(amount) {
		return nil, fmt.Errorf("%w: capture %s over authorized %s", ports.ErrAmountExceedsAuthorized, amount, intent.Authorized)
	}

	if err := o.callWithRetry(ctx, func() error {
		return o.gateway.Capture(ctx, intentID, amount)
	}); err != nil {
		return nil, err
	}

	intent.Captured = amount
	intent.State = ports.PaymentCaptured
	intent.UpdatedAt = time.Now().UTC()
	if err := o.intents.Update(ctx, *intent); err != nil {
		return nil, fmt.Errorf("update intent %s: %w", intentID, err)
	}

	o.logger.InfoContext(ctx, "payment captured",
		"intent_id", intentID,
		"amount", amount.Amount(),
	)

	return intent, nil
}

// Refund returns captured funds. Refunds may be partial and cumulative,
// bounded by the captured amount — the capture ceiling, not the original
// cart amount. A refund that exhausts the captured amount moves the intent
// to Refunded, anything less to PartiallyRefunded.
func (o *Orchestrator) Refund(ctx context.Context, intentID string, amount money.Money) (*ports.PaymentIntent, error) {
	unlock := o.lock(intentID)
	defer unlock()

	intent, err := o.intents.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.State != ports.PaymentCaptured && intent.State != ports.PaymentPartiallyRefunded {
		return nil, fmt.Errorf("%w: refund requires captured, intent %s is %s", ports.ErrInvalidState, intentID, intent.State)
	}
	if amount.Currency() != intent.Captured.Currency() {
		return nil, &money.CurrencyMismatchError{Left: amount.Currency(), Right: intent.Captured.Currency()}
	}

	refunded, err := intent.Refunded.Add(amount)
	if err != nil {
		return nil, err
	}
	if intent.Captured.LessThan(refunded) {
		return nil, fmt.Errorf("%w: refund total %s over captured %s", ports.ErrAmountExceedsAuthorized, refunded, intent.Captured)
	}

	if err := o.callWithRetry(ctx, func() error {
		return o.gateway.Refund(ctx, intentID, amount)
	}); err != nil {
		return nil, err
	}

	intent.Refunded = refunded
	if refunded.Equal(intent.Captured) {
		intent.State = ports.PaymentRefunded
	} else {
		intent.State = ports.PaymentPartiallyRefunded
	}
	intent.UpdatedAt = time.Now().UTC()
	if err := o.intents.Update(ctx, *intent); err != nil {
		return nil, fmt.Errorf("update intent %s: %w", intentID, err)
	}

	o.logger.InfoContext(ctx, "payment refunded",
		"intent_id", intentID,
		"amount", amount.Amount(),
		"state", string(intent.State),
	)

	return intent, nil
}

// Get retrieves an intent by id.
func (o *Orchestrator) Get(ctx context.Context, intentID string) (*ports.PaymentIntent, error) {
	return o.intents.Get(ctx, intentID)
}

// recordDeclined persists a Failed intent for a declined authorization so
// the attempt is auditable alongside successful ones. Authorized carries
// the requested amount; no funds were committed.
func (o *Orchestrator) recordDeclined(ctx context.Context, amount money.Money, orderRef string) {
	now := time.Now().UTC()
	intent := ports.PaymentIntent{
		ID:         "pi_" + uuid.New().String(),
		OrderRef:   orderRef,
		Authorized: amount,
		Captured:   money.Zero(amount.Currency()),
		Refunded:   money.Zero(amount.Currency()),
		State:      ports.PaymentFailed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.intents.Create(ctx, intent); err != nil {
		o.logger.WarnContext(ctx, "failed to record declined intent",
			"order_ref", orderRef,
			"error", err,
		)
	}
}

func (o *Orchestrator) lock(intentID string) func() {
	value, _ := o.locks.LoadOrStore(intentID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (o *Orchestrator) callWithRetry(ctx context.Context, call func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, classify(call())
	}, o.retryOpts()...)
	if err != nil {
		if errors.Is(err, ErrDeclined) {
			return ports.ErrPaymentDeclined
		}
		if errors.Is(err, ErrGatewayUnavailable) {
			return fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) retryOpts() []backoff.RetryOption {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = o.retry.BaseInterval
	expo.Multiplier = 2

	return []backoff.RetryOption{
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(o.retry.MaxTries),
	}
}

// classify marks every gateway error except the transient one as permanent
// so backoff stops immediately.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGatewayUnavailable) {
		return err
	}
	return backoff.Permanent(err)
}
