package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/checkout/internal/money"
)

// PaymentState is the lifecycle position of a payment intent.
type PaymentState string

const (
	PaymentAuthorized        PaymentState = "authorized"
	PaymentCaptured          PaymentState = "captured"
	PaymentRefunded          PaymentState = "refunded"
	PaymentPartiallyRefunded PaymentState = "partially_refunded"
	PaymentFailed            PaymentState = "failed"
)

// PaymentIntent tracks an authorization and the amounts moved against it.
type PaymentIntent struct {
	ID         string       `json:"id"`
	OrderRef   string       `json:"order_ref"`
	Authorized money.Money  `json:"authorized"`
	Captured   money.Money  `json:"captured"`
	Refunded   money.Money  `json:"refunded"`
	State      PaymentState `json:"state"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

var (
	// ErrPaymentDeclined is the terminal rejection from the processor.
	ErrPaymentDeclined = errors.New("payment declined by processor")
	// ErrServiceUnavailable is surfaced after retries against a flapping gateway are exhausted.
	ErrServiceUnavailable = errors.New("payment service unavailable")
	// ErrInvalidState is returned for an operation the intent's state does not permit.
	ErrInvalidState = errors.New("invalid payment intent state")
	// ErrAmountExceedsAuthorized is returned when a capture exceeds the
	// authorized amount or a refund exceeds the captured amount.
	ErrAmountExceedsAuthorized = errors.New("amount exceeds authorized ceiling")
	// ErrIntentNotFound is returned when no intent exists for the given id.
	ErrIntentNotFound = errors.New("payment intent not found")
)

// PaymentOrchestrator enforces the authorize/capture/refund state machine
// over whichever payment backend is plugged in.
type PaymentOrchestrator interface {
	Authorize(ctx context.Context, amount money.Money, orderRef string) (*PaymentIntent, error)
	Capture(ctx context.Context, intentID string, amount money.Money) (*PaymentIntent, error)
	Refund(ctx context.Context, intentID string, amount money.Money) (*PaymentIntent, error)
	Get(ctx context.Context, intentID string) (*PaymentIntent, error)
}
