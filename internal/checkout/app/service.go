package app

import (
	"context"
	"log/slog"

	"github.com/dejobratic/checkout/internal/checkout/app/commands"
	"github.com/dejobratic/checkout/internal/checkout/app/queries"
	"github.com/dejobratic/checkout/internal/checkout/domain"
	"github.com/dejobratic/checkout/internal/checkout/metrics"
	"github.com/dejobratic/checkout/internal/checkout/ports"
)

// Service bundles the checkout use cases exposed to the API.
type Service struct {
	repo            ports.OrderRepository
	idemStore       ports.IdempotencyStore
	placeOrder      commands.CommandHandler
	getOrderHandler *queries.GetOrderQueryHandler
}

// NewService wires required dependencies.
func NewService(
	repo ports.OrderRepository,
	ledger ports.InventoryLedger,
	idem ports.IdempotencyStore,
	payments ports.PaymentOrchestrator,
	promotions ports.PromotionCatalog,
	events ports.EventBus,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	coreHandler := commands.NewPlaceOrderCommandHandler(repo, ledger, idem, payments, promotions, events, logger)
	observableHandler := commands.NewObservableCommandHandler(coreHandler, logger, metrics)

	return &Service{
		repo:            repo,
		idemStore:       idem,
		placeOrder:      observableHandler,
		getOrderHandler: queries.NewGetOrderQueryHandler(repo),
	}
}

// PlaceOrderInput captures the payload of a checkout request.
type PlaceOrderInput struct {
	CustomerEmail string            `json:"customer_email"`
	Lines         []domain.CartLine `json:"lines"`
	DiscountCodes []string          `json:"discount_codes"`
}

// PlaceOrder runs one transactional checkout under the given idempotency key.
func (s *Service) PlaceOrder(ctx context.Context, input PlaceOrderInput, idempotencyKey string) (*commands.PlaceOrderResult, error) {
	cmd := commands.PlaceOrderCommand{
		CustomerEmail:  input.CustomerEmail,
		Lines:          input.Lines,
		DiscountCodes:  input.DiscountCodes,
		IdempotencyKey: idempotencyKey,
	}
	return s.placeOrder.Handle(ctx, cmd)
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.getOrderHandler.Handle(ctx, queries.GetOrderQuery{OrderID: id})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return s.repo.List(ctx, filter)
}

// ClaimEvent deduplicates an external processor event by its id. It returns
// true when the event has not been seen before.
func (s *Service) ClaimEvent(ctx context.Context, eventID string) (bool, error) {
	claim, err := s.idemStore.Claim(ctx, "webhook:"+eventID)
	if err != nil {
		return false, err
	}
	if claim.Winner {
		// Webhook handling is fire-and-forget: mark the event consumed
		// immediately so redeliveries replay instead of blocking.
		if err := s.idemStore.AttachResult(ctx, "webhook:"+eventID, []byte(`{"handled":true}`)); err != nil {
			return false, err
		}
	}
	return claim.Winner, nil
}
