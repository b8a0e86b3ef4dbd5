package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/checkout/internal/checkout/domain"
)

// ErrPromotionNotFound is returned when a discount code is unknown.
var ErrPromotionNotFound = errors.New("promotion not found")

// PromotionCatalog resolves client-facing discount codes to promotions.
type PromotionCatalog interface {
	FindByCode(ctx context.Context, code string) (*domain.Promotion, error)
}
