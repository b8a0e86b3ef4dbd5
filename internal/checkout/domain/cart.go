package domain

import (
	"errors"
	"strings"

	"github.com/dejobratic/checkout/internal/money"
)

// CartLine is one SKU position in a checkout request. Lines are owned by
// the request and never mutated after creation.
type CartLine struct {
	SKU       string      `json:"sku"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int64       `json:"quantity"`
	Category  string      `json:"category,omitempty"`
}

// Validate ensures the line adheres to business constraints.
func (l CartLine) Validate() error {
	if strings.TrimSpace(l.SKU) == "" {
		return errors.New("sku is required")
	}
	if l.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return nil
}

// Subtotal sums unit price times quantity over all lines. Mixed-currency
// carts are rejected outright with a CurrencyMismatchError.
func Subtotal(lines []CartLine) (money.Money, error) {
	if len(lines) == 0 {
		return money.Money{}, errors.New("cart is empty")
	}

	total := money.Zero(lines[0].UnitPrice.Currency())
	for _, line := range lines {
		lineTotal, err := line.UnitPrice.MulQty(line.Quantity)
		if err != nil {
			return money.Money{}, err
		}
		total, err = total.Add(lineTotal)
		if err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}

// Categories collects the distinct category identifiers present in the cart.
func Categories(lines []CartLine) map[string]struct{} {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.Category != "" {
			set[line.Category] = struct{}{}
		}
	}
	return set
}
