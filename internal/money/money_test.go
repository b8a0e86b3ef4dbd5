package money_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dejobratic/checkout/internal/money"
)

func TestNew(t *testing.T) {
	t.Run("rejects negative amounts", func(t *testing.T) {
		if _, err := money.New(-1, "EUR"); err == nil {
			t.Fatal("expected error for negative amount")
		}
	})

	t.Run("rejects empty currency", func(t *testing.T) {
		if _, err := money.New(100, ""); err == nil {
			t.Fatal("expected error for empty currency")
		}
	})
}

func TestAdd(t *testing.T) {
	t.Run("is commutative for the same currency", func(t *testing.T) {
		a := money.MustNew(1050, "EUR")
		b := money.MustNew(499, "EUR")

		ab, err := a.Add(b)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		ba, err := b.Add(a)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		if !ab.Equal(ba) {
			t.Errorf("expected %v == %v", ab, ba)
		}
		if ab.Amount() != 1549 {
			t.Errorf("expected 1549, got %d", ab.Amount())
		}
	})

	t.Run("fails on currency mismatch", func(t *testing.T) {
		a := money.MustNew(100, "EUR")
		b := money.MustNew(100, "USD")

		_, err := a.Add(b)

		var mismatch *money.CurrencyMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected CurrencyMismatchError, got: %v", err)
		}
	})
}

func TestSub(t *testing.T) {
	t.Run("fails when result would be negative", func(t *testing.T) {
		a := money.MustNew(100, "EUR")
		b := money.MustNew(200, "EUR")

		if _, err := a.Sub(b); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("floored variant clamps at zero", func(t *testing.T) {
		a := money.MustNew(100, "EUR")
		b := money.MustNew(200, "EUR")

		result, err := a.SubFloored(b)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if result.Amount() != 0 {
			t.Errorf("expected 0, got %d", result.Amount())
		}
	})
}

func TestScale(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		num    int64
		den    int64
		want   int64
	}{
		{"exact division", 1000, 1, 2, 500},
		{"rounds down below half", 1001, 1, 3, 334},
		{"half rounds to even down", 25, 1, 10, 2},   // 2.5 -> 2
		{"half rounds to even up", 35, 1, 10, 4},     // 3.5 -> 4
		{"half rounds to even at 5", 50, 1, 100, 0},  // 0.5 -> 0
		{"half rounds to even at 15", 150, 1, 100, 2}, // 1.5 -> 2
		{"ninety percent", 1500, 9000, 10000, 1350},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := money.MustNew(tt.amount, "EUR")
			got, err := m.Scale(tt.num, tt.den)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if got.Amount() != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got.Amount())
			}
		})
	}

	t.Run("rejects non-positive denominator", func(t *testing.T) {
		m := money.MustNew(100, "EUR")
		if _, err := m.Scale(1, 0); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestJSONRoundTrip(t *testing.T) {
	original := money.MustNew(1350, "EUR")

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"amount":1350,"currency":"EUR"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}

	var decoded money.Money
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(original) {
		t.Errorf("expected %v, got %v", original, decoded)
	}
}
