package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/dejobratic/checkout/internal/money"
	"github.com/dejobratic/checkout/internal/payment"
	"github.com/google/uuid"
)

// Gateway is a deterministic in-process payment backend for local
// development and tests. Failures can be scripted per order reference.
type Gateway struct {
	mu         sync.Mutex
	declines   map[string]struct{}
	declineAll bool
	outages    int
	authCalls  int
}

// NewGateway returns a gateway that approves everything.
func NewGateway() *Gateway {
	return &Gateway{declines: make(map[string]struct{})}
}

// DeclineOrder makes every future authorization for the order reference fail
// with payment.ErrDeclined.
func (g *Gateway) DeclineOrder(orderRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declines[orderRef] = struct{}{}
}

// DeclineAll makes every future authorization fail with payment.ErrDeclined
// regardless of order reference.
func (g *Gateway) DeclineAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declineAll = true
}

// FailNext makes the next n calls fail with payment.ErrGatewayUnavailable
// before the gateway recovers.
func (g *Gateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outages = n
}

// AuthorizeCalls reports how many authorization attempts reached the gateway.
func (g *Gateway) AuthorizeCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authCalls
}

func (g *Gateway) Authorize(_ context.Context, _ money.Money, orderRef string, _ map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.authCalls++
	if g.outages > 0 {
		g.outages--
		return "", payment.ErrGatewayUnavailable
	}
	if _, declined := g.declines[orderRef]; declined || g.declineAll {
		return "", fmt.Errorf("%w: order %s", payment.ErrDeclined, orderRef)
	}
	return "pi_" + uuid.New().String(), nil
}

func (g *Gateway) Capture(_ context.Context, intentID string, _ money.Money) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.outages > 0 {
		g.outages--
		return payment.ErrGatewayUnavailable
	}
	if intentID == "" {
		return fmt.Errorf("capture: intent id is required")
	}
	return nil
}

func (g *Gateway) Refund(_ context.Context, intentID string, _ money.Money) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.outages > 0 {
		g.outages--
		return payment.ErrGatewayUnavailable
	}
	if intentID == "" {
		return fmt.Errorf("refund: intent id is required")
	}
	return nil
}
