package domain

import "github.com/dejobratic/checkout/internal/money"

// Totals is the priced outcome of a cart before VAT.
type Totals struct {
	Subtotal       money.Money `json:"subtotal"`
	DiscountAmount money.Money `json:"discount_amount"`
	TotalExclVAT   money.Money `json:"total_excl_vat"`
}

// ComputeTotals prices a cart. The discount tiers apply in a fixed order:
// all fixed-amount discounts are summed and subtracted first, floored at
// zero, then the summed percentage discounts apply to the post-fixed amount
// with a single rounding. Fixed vouchers must not compound with percentage
// markdowns, so the tier order is load-bearing.
func ComputeTotals(lines []CartLine, discounts []Discount) (Totals, error) {
	subtotal, err := Subtotal(lines)
	if err != nil {
		return Totals{}, err
	}

	for _, d := range discounts {
		if err := d.Validate(); err != nil {
			return Totals{}, err
		}
	}

	fixed := money.Zero(subtotal.Currency())
	var percentBP int64
	for _, d := range discounts {
		switch d.Kind {
		case DiscountFixed:
			fixed, err = fixed.Add(d.Amount)
			if err != nil {
				return Totals{}, err
			}
		case DiscountPercentage:
			percentBP += d.PercentBP
		}
	}
	if percentBP > 10000 {
		percentBP = 10000
	}

	afterFixed, err := subtotal.SubFloored(fixed)
	if err != nil {
		return Totals{}, err
	}

	total, err := afterFixed.Scale(10000-percentBP, 10000)
	if err != nil {
		return Totals{}, err
	}

	discountAmount, err := subtotal.Sub(total)
	if err != nil {
		return Totals{}, err
	}

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TotalExclVAT:   total,
	}, nil
}
