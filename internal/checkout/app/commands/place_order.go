package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/checkout/internal/checkout/domain"
	"github.com/dejobratic/checkout/internal/checkout/ports"
	"github.com/dejobratic/checkout/internal/money"
)

// PlaceOrderCommand is one checkout request: a cart, the discount codes the
// customer entered, and the client-supplied idempotency key.
type PlaceOrderCommand struct {
	CustomerEmail  string
	Lines          []domain.CartLine
	DiscountCodes  []string
	IdempotencyKey string
}

// Validate ensures the command is well formed before any side effect runs.
func (c PlaceOrderCommand) Validate() error {
	if strings.TrimSpace(c.CustomerEmail) == "" {
		return errors.New("customer_email is required")
	}
	if !strings.Contains(c.CustomerEmail, "@") {
		return errors.New("customer_email must be valid")
	}
	if len(c.Lines) == 0 {
		return errors.New("cart must contain at least one line")
	}
	for _, line := range c.Lines {
		if err := line.Validate(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.IdempotencyKey) == "" {
		return errors.New("idempotency_key is required")
	}
	return nil
}

// PlaceOrderResult is the terminal outcome of a checkout. Raw is the exact
// byte payload stored under the idempotency key; replays return it
// byte-for-byte.
type PlaceOrderResult struct {
	Order    *domain.Order
	Raw      []byte
	Replayed bool
}

// outcome is the JSON shape attached to the idempotency key. Failures are
// outcomes too: a retry with the same key must observe the first execution's
// result, never trigger a second independent execution.
type outcome struct {
	Order     *domain.Order `json:"order,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	SKU       string        `json:"sku,omitempty"`
}

const (
	kindOutOfStock         = "out_of_stock"
	kindPaymentDeclined    = "payment_declined"
	kindServiceUnavailable = "service_unavailable"
	kindPromotionNotFound  = "promotion_not_found"
	kindInternal           = "internal"
)

// ErrInvalidRequest marks a command rejected before any side effect ran.
var ErrInvalidRequest = errors.New("invalid checkout request")

type CommandHandler interface {
	Handle(ctx context.Context, cmd PlaceOrderCommand) (*PlaceOrderResult, error)
}

// PlaceOrderCommandHandler orchestrates one transactional checkout: claim
// the idempotency key, price the cart, reserve stock, authorize and capture
// payment, persist the order. Any failure after the claim leaves no partial
// reservation or payment state behind.
type PlaceOrderCommandHandler struct {
	repo       ports.OrderRepository
	ledger     ports.InventoryLedger
	idem       ports.IdempotencyStore
	payments   ports.PaymentOrchestrator
	promotions ports.PromotionCatalog
	events     ports.EventBus
	logger     *slog.Logger
}

func NewPlaceOrderCommandHandler(
	repo ports.OrderRepository,
	ledger ports.InventoryLedger,
	idem ports.IdempotencyStore,
	payments ports.PaymentOrchestrator,
	promotions ports.PromotionCatalog,
	events ports.EventBus,
	logger *slog.Logger,
) *PlaceOrderCommandHandler {
	return &PlaceOrderCommandHandler{
		repo:       repo,
		ledger:     ledger,
		idem:       idem,
		payments:   payments,
		promotions: promotions,
		events:     events,
		logger:     logger,
	}
}

func (h *PlaceOrderCommandHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*PlaceOrderResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	claim, err := h.idem.Claim(ctx, cmd.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !claim.Winner {
		return h.replay(claim.Result)
	}

	order, execErr := h.execute(ctx, cmd)
	raw, err := json.Marshal(toOutcome(order, execErr))
	if err != nil {
		return nil, fmt.Errorf("encode checkout outcome: %w", err)
	}

	// The outcome is attached even on failure so same-key retries observe
	// this execution's result instead of blocking forever. Idempotency
	// records outlive the request, hence the detached context.
	if err := h.idem.AttachResult(context.WithoutCancel(ctx), cmd.IdempotencyKey, raw); err != nil {
		h.logger.ErrorContext(ctx, "failed to attach idempotency result",
			"idempotency_key", cmd.IdempotencyKey,
			"error", err,
		)
	}

	if execErr != nil {
		// The idempotency key is the only stable reference when the
		// checkout failed before an order existed.
		if pubErr := h.events.PublishCheckoutFailed(ctx, cmd.IdempotencyKey, execErr.Error()); pubErr != nil {
			h.logger.WarnContext(ctx, "failed to publish checkout failure",
				"idempotency_key", cmd.IdempotencyKey,
				"error", pubErr,
			)
		}
		return nil, execErr
	}
	return &PlaceOrderResult{Order: order, Raw: raw}, nil
}

func (h *PlaceOrderCommandHandler) execute(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, error) {
	discounts, err := h.resolvePromotions(ctx, cmd)
	if err != nil {
		return nil, err
	}

	totals, err := domain.ComputeTotals(cmd.Lines, discounts)
	if err != nil {
		return nil, err
	}

	// Reserve stock before talking to the payment backend: ledger
	// operations are cheap and local, the gateway call may block on the
	// network, and contended per-SKU locks must never be held across it.
	tokens, err := h.reserveAll(ctx, cmd.Lines)
	if err != nil {
		return nil, err
	}

	orderID, err := generateOrderID()
	if err != nil {
		h.releaseAll(ctx, orderID, tokens)
		return nil, err
	}

	intent, err := h.payments.Authorize(ctx, totals.TotalExclVAT, orderID)
	if err != nil {
		h.releaseAll(ctx, orderID, tokens)
		return nil, err
	}

	if _, err := h.payments.Capture(ctx, intent.ID, totals.TotalExclVAT); err != nil {
		h.releaseAll(ctx, orderID, tokens)
		return nil, err
	}

	order := domain.Order{
		ID:             orderID,
		CustomerEmail:  cmd.CustomerEmail,
		Lines:          cmd.Lines,
		Totals:         totals,
		PaymentRef:     intent.ID,
		ReservationIDs: tokenIDs(tokens),
		Status:         domain.StatusPlaced,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := order.Validate(); err != nil {
		h.compensateCaptured(ctx, orderID, intent.ID, totals.TotalExclVAT, tokens)
		return nil, err
	}

	if err := h.repo.Create(ctx, order); err != nil {
		h.compensateCaptured(ctx, orderID, intent.ID, totals.TotalExclVAT, tokens)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	h.commitAll(ctx, orderID, tokens)

	if err := h.events.PublishOrderPlaced(ctx, order.ID); err != nil {
		h.logger.WarnContext(ctx, "order placed but event publish failed",
			"order_id", order.ID,
			"error", err,
		)
	}

	return &order, nil
}

func (h *PlaceOrderCommandHandler) resolvePromotions(ctx context.Context, cmd PlaceOrderCommand) ([]domain.Discount, error) {
	if len(cmd.DiscountCodes) == 0 {
		return nil, nil
	}

	subtotal, err := domain.Subtotal(cmd.Lines)
	if err != nil {
		return nil, err
	}
	ruleCtx := domain.RuleContext{
		Subtotal:   subtotal,
		Categories: domain.Categories(cmd.Lines),
	}

	var discounts []domain.Discount
	for _, code := range cmd.DiscountCodes {
		promo, err := h.promotions.FindByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("resolve code %q: %w", code, err)
		}
		// Ineligible codes are skipped, not rejected: carts below a
		// promotion's threshold still check out at full price.
		if promo.Rule != nil && !promo.Rule.Eligible(ruleCtx) {
			continue
		}
		discount := promo.Discount
		discount.Code = promo.Code
		discounts = append(discounts, discount)
	}
	return discounts, nil
}

// reserveAll reserves every line all-or-nothing: the first OutOfStock
// releases everything already acquired and fails the checkout naming the
// offending SKU.
func (h *PlaceOrderCommandHandler) reserveAll(ctx context.Context, lines []domain.CartLine) ([]ports.ReservationToken, error) {
	tokens := make([]ports.ReservationToken, 0, len(lines))
	for _, line := range lines {
		token, err := h.ledger.Reserve(ctx, line.SKU, line.Quantity)
		if err != nil {
			h.releaseAll(ctx, "", tokens)
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// releaseAll runs the reservation compensating action. A cancelled request
// must still release what it holds, so compensation runs on a detached
// context; failures are escalated for manual reconciliation, never folded
// into the caller's result.
func (h *PlaceOrderCommandHandler) releaseAll(ctx context.Context, orderRef string, tokens []ports.ReservationToken) {
	ctx = context.WithoutCancel(ctx)
	for _, token := range tokens {
		if err := h.ledger.Release(ctx, token); err != nil {
			h.logger.ErrorContext(ctx, "reservation release failed",
				"token_id", token.ID,
				"sku", token.SKU,
				"error", err,
			)
			h.escalate(ctx, orderRef, fmt.Sprintf("release %s (sku %s): %v", token.ID, token.SKU, err))
		}
	}
}

// compensateCaptured reverses a checkout that failed after funds were
// captured: refund the full capture, then return the reserved stock.
func (h *PlaceOrderCommandHandler) compensateCaptured(ctx context.Context, orderRef, intentID string, amount money.Money, tokens []ports.ReservationToken) {
	detached := context.WithoutCancel(ctx)
	if _, err := h.payments.Refund(detached, intentID, amount); err != nil {
		h.logger.ErrorContext(detached, "compensating refund failed",
			"intent_id", intentID,
			"order_ref", orderRef,
			"error", err,
		)
		h.escalate(detached, orderRef, fmt.Sprintf("refund intent %s: %v", intentID, err))
	}
	h.releaseAll(ctx, orderRef, tokens)
}

// commitAll converts the request's reservations into permanent deductions.
// A commit failure at this point is an internal-consistency problem: the
// order exists and payment is captured, so it is escalated to operators
// rather than unwound.
func (h *PlaceOrderCommandHandler) commitAll(ctx context.Context, orderRef string, tokens []ports.ReservationToken) {
	ctx = context.WithoutCancel(ctx)
	for _, token := range tokens {
		if err := h.ledger.Commit(ctx, token); err != nil {
			h.logger.ErrorContext(ctx, "reservation commit failed",
				"token_id", token.ID,
				"sku", token.SKU,
				"error", err,
			)
			h.escalate(ctx, orderRef, fmt.Sprintf("commit %s (sku %s): %v", token.ID, token.SKU, err))
		}
	}
}

func (h *PlaceOrderCommandHandler) escalate(ctx context.Context, orderRef, detail string) {
	if err := h.events.PublishCompensationFailed(ctx, orderRef, detail); err != nil {
		h.logger.ErrorContext(ctx, "failed to escalate compensation failure",
			"order_ref", orderRef,
			"detail", detail,
			"error", err,
		)
	}
}

// replay reconstructs the first execution's outcome from the stored bytes.
func (h *PlaceOrderCommandHandler) replay(raw []byte) (*PlaceOrderResult, error) {
	var stored outcome
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode stored checkout outcome: %w", err)
	}
	if stored.ErrorKind != "" {
		return nil, replayError(stored)
	}
	return &PlaceOrderResult{Order: stored.Order, Raw: raw, Replayed: true}, nil
}

func toOutcome(order *domain.Order, err error) outcome {
	if err == nil {
		return outcome{Order: order}
	}

	kind := kindInternal
	var sku string
	var oos *ports.OutOfStockError
	switch {
	case errors.As(err, &oos):
		kind = kindOutOfStock
		sku = oos.SKU
	case errors.Is(err, ports.ErrPaymentDeclined):
		kind = kindPaymentDeclined
	case errors.Is(err, ports.ErrServiceUnavailable):
		kind = kindServiceUnavailable
	case errors.Is(err, ports.ErrPromotionNotFound):
		kind = kindPromotionNotFound
	}
	return outcome{ErrorKind: kind, Error: err.Error(), SKU: sku}
}

func replayError(stored outcome) error {
	switch stored.ErrorKind {
	case kindOutOfStock:
		return &ports.OutOfStockError{SKU: stored.SKU}
	case kindPaymentDeclined:
		return fmt.Errorf("%w (replayed)", ports.ErrPaymentDeclined)
	case kindServiceUnavailable:
		return fmt.Errorf("%w (replayed)", ports.ErrServiceUnavailable)
	case kindPromotionNotFound:
		return fmt.Errorf("%w (replayed)", ports.ErrPromotionNotFound)
	default:
		return fmt.Errorf("replayed checkout failure: %s", stored.Error)
	}
}

func tokenIDs(tokens []ports.ReservationToken) []string {
	ids := make([]string, len(tokens))
	for i, token := range tokens {
		ids[i] = token.ID
	}
	return ids
}

func generateOrderID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate order id: %w", err)
	}
	return "ord_" + hex.EncodeToString(buf), nil
}
