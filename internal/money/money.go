package money

import (
	"encoding/json"
	"fmt"
)

// Money is an exact currency amount expressed in minor units (cents for
// EUR/USD). It is immutable; every operation returns a new value.
type Money struct {
	amount   int64
	currency string
}

// CurrencyMismatchError is returned when arithmetic mixes currencies.
type CurrencyMismatchError struct {
	Left  string
	Right string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Left, e.Right)
}

// New constructs a Money value. Checkout amounts are non-negative, so a
// negative amount is rejected.
func New(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("amount must be non-negative, got %d", amount)
	}
	if currency == "" {
		return Money{}, fmt.Errorf("currency is required")
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustNew is New for literals in tests and seed data; it panics on error.
func MustNew(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{amount: 0, currency: currency}
}

// Amount returns the value in minor units.
func (m Money) Amount() int64 { return m.amount }

// Currency returns the ISO currency code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount == 0 }

// Add returns m + other, failing if the currencies differ.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount + other.amount, currency: m.currency}, nil
}

// Sub returns m - other, failing if the currencies differ or the result
// would be negative.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.amount > m.amount {
		return Money{}, fmt.Errorf("subtraction would be negative: %d - %d", m.amount, other.amount)
	}
	return Money{amount: m.amount - other.amount, currency: m.currency}, nil
}

// SubFloored returns m - other floored at zero, failing only on a
// currency mismatch.
func (m Money) SubFloored(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	amount := m.amount - other.amount
	if amount < 0 {
		amount = 0
	}
	return Money{amount: amount, currency: m.currency}, nil
}

// MulQty returns m multiplied by a non-negative quantity.
func (m Money) MulQty(qty int64) (Money, error) {
	if qty < 0 {
		return Money{}, fmt.Errorf("quantity must be non-negative, got %d", qty)
	}
	return Money{amount: m.amount * qty, currency: m.currency}, nil
}

// Scale multiplies m by the rational num/den and rounds the result to the
// nearest minor unit using round-half-to-even, the single rounding rule
// applied everywhere money is scaled.
func (m Money) Scale(num, den int64) (Money, error) {
	if den <= 0 {
		return Money{}, fmt.Errorf("denominator must be positive, got %d", den)
	}
	if num < 0 {
		return Money{}, fmt.Errorf("numerator must be non-negative, got %d", num)
	}
	return Money{amount: roundHalfEven(m.amount*num, den), currency: m.currency}, nil
}

// LessThan reports m < other; the caller must have checked currencies.
func (m Money) LessThan(other Money) bool { return m.amount < other.amount }

// Equal reports whether two values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.amount == other.amount && m.currency == other.currency
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.amount, m.currency)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return &CurrencyMismatchError{Left: m.currency, Right: other.currency}
	}
	return nil
}

// roundHalfEven divides n by d (d > 0, n >= 0) rounding half to even.
func roundHalfEven(n, d int64) int64 {
	q := n / d
	r := n % d
	switch {
	case 2*r > d:
		return q + 1
	case 2*r < d:
		return q
	default:
		// Exactly half: round to the even neighbour.
		if q%2 != 0 {
			return q + 1
		}
		return q
	}
}

type moneyJSON struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes the amount as integer minor units plus the currency
// code. Money is never represented as a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount, Currency: m.currency})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := New(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
