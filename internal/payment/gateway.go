package payment

import (
	"context"
	"errors"

	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/money"
)

var (
	// ErrDeclined is a terminal rejection from the payment backend.
	ErrDeclined = errors.New("declined by processor")
	// ErrGatewayUnavailable is a transient backend failure; the
	// orchestrator retries it with bounded exponential backoff.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Gateway is the external payment-backend capability. Implementations are
// genuinely pluggable and swapped per deployment, so this stays an open
// interface rather than a closed variant set.
type Gateway interface {
	Authorize(ctx context.Context, amount money.Money, orderRef string, metadata map[string]string) (intentID string, err error)
	Capture(ctx context.Context, intentID string, amount money.Money) error
	Refund(ctx context.Context, intentID string, amount money.Money) error
}

// IntentStore persists payment intents. Implementations must support
// per-intent atomic read-modify-write.
type IntentStore interface {
	Create(ctx context.Context, intent ports.PaymentIntent) error
	Get(ctx context.Context, id string) (*ports.PaymentIntent, error)
	Update(ctx context.Context, intent ports.PaymentIntent) error
}
