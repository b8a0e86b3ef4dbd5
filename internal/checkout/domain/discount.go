package domain

import (
	"errors"
	"fmt"

	"github.com/dejobratic/checkout/internal/money"
)

// DiscountKind distinguishes fixed-amount vouchers from percentage markdowns.
type DiscountKind string

const (
	DiscountFixed      DiscountKind = "fixed"
	DiscountPercentage DiscountKind = "percentage"
)

// Discount is a price reduction granted by a promotion. Fixed discounts
// carry a Money amount; percentage discounts carry basis points (1000 = 10%).
// Code records which promotion authorized the discount, for audit.
type Discount struct {
	Kind      DiscountKind `json:"kind"`
	Amount    money.Money  `json:"amount,omitempty"`
	PercentBP int64        `json:"percent_bp,omitempty"`
	Code      string       `json:"code,omitempty"`
}

// Validate ensures the discount is well formed for its kind.
func (d Discount) Validate() error {
	switch d.Kind {
	case DiscountFixed:
		if d.Amount.Currency() == "" {
			return errors.New("fixed discount requires an amount")
		}
		return nil
	case DiscountPercentage:
		if d.PercentBP <= 0 || d.PercentBP > 10000 {
			return fmt.Errorf("percentage discount must be in (0, 10000] basis points, got %d", d.PercentBP)
		}
		return nil
	default:
		return fmt.Errorf("unknown discount kind %q", d.Kind)
	}
}
