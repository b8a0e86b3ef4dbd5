package domain

import (
	"errors"
	"strings"
	"time"
)

// OrderStatus captures the lifecycle of an order after checkout. Statuses
// past Placed are advanced by shipping and settlement events outside this
// service.
type OrderStatus string

const (
	StatusPlaced    OrderStatus = "placed"
	StatusShipped   OrderStatus = "shipped"
	StatusSettled   OrderStatus = "settled"
	StatusCancelled OrderStatus = "cancelled"
)

// Order is the immutable record created once payment authorization and
// inventory reservation have both succeeded. Only Status and UpdatedAt
// move afterwards.
type Order struct {
	ID             string      `json:"id"`
	CustomerEmail  string      `json:"customer_email"`
	Lines          []CartLine  `json:"lines"`
	Totals         Totals      `json:"totals"`
	PaymentRef     string      `json:"payment_ref"`
	ReservationIDs []string    `json:"reservation_ids"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Validate ensures the order adheres to business constraints.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return errors.New("order id is required")
	}
	if strings.TrimSpace(o.CustomerEmail) == "" {
		return errors.New("customer_email is required")
	}
	if !strings.Contains(o.CustomerEmail, "@") {
		return errors.New("customer_email must be valid")
	}
	if len(o.Lines) == 0 {
		return errors.New("order must contain at least one line")
	}
	for _, line := range o.Lines {
		if err := line.Validate(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(o.PaymentRef) == "" {
		return errors.New("payment_ref is required")
	}
	return nil
}

// IsTerminal indicates whether the order is in a terminal state.
func (o Order) IsTerminal() bool {
	switch o.Status {
	case StatusSettled, StatusCancelled:
		return true
	default:
		return false
	}
}
