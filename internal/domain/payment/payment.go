package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	ErrInvalidIntent      = errors.New("payment: invalid intent")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusFailed:
		return st, true
	}
	return "", false
}

// Intent describes the charge the gateway should prepare for an order.
type Intent struct {
	OrderID     string
	Amount      decimal.Decimal
	AmountMinor int64
	Currency    string
	Receipt     string
}

// NewIntent converts the order total to minor units (amount x 100).
func NewIntent(orderID string, amount decimal.Decimal, currency string) (Intent, error) {
	if orderID == "" || amount.IsNegative() || currency == "" {
		return Intent{}, ErrInvalidIntent
	}
	return Intent{
		OrderID:     orderID,
		Amount:      amount,
		AmountMinor: amount.Shift(2).Round(0).IntPart(),
		Currency:    currency,
		Receipt:     "order_rcptid_" + orderID,
	}, nil
}

// Bridge is the payment provider as seen by the order service.
type Bridge interface {
	// CreateIntent registers the charge and returns the provider's opaque reference.
	CreateIntent(ctx context.Context, intent Intent) (string, error)
	// Verify reports the provider's view of the payment for an order.
	Verify(ctx context.Context, orderID, externalRef string) (Status, error)
}
