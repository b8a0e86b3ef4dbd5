package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/checkout/internal/checkout/domain"
	"github.com/dejobratic/checkout/internal/checkout/ports"
)

// Catalog is an in-memory promotion catalog keyed by code.
type Catalog struct {
	mu     sync.RWMutex
	promos map[string]domain.Promotion
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{promos: make(map[string]domain.Promotion)}
}

// Add registers a promotion under its code, replacing any previous one.
func (c *Catalog) Add(promo domain.Promotion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promos[promo.Code] = promo
}

// FindByCode looks up a promotion by code.
func (c *Catalog) FindByCode(_ context.Context, code string) (*domain.Promotion, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	promo, ok := c.promos[code]
	if !ok {
		return nil, ports.ErrPromotionNotFound
	}
	return &promo, nil
}
