package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/payment"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("order: not found")
	ErrConflict                = errors.New("order: concurrent modification")
	ErrInvalidAddress          = errors.New("order: shipping address is required")
	ErrInvalidItems            = errors.New("order: at least one item with a positive quantity is required")
	ErrInvalidStatus           = errors.New("order: invalid status")
	ErrInvalidPaymentStatus    = errors.New("order: invalid payment status")
	ErrInvalidState            = errors.New("order: invalid state transition")
	ErrAlreadyCancelled        = fmt.Errorf("%w: order already cancelled", ErrInvalidState)
	ErrPaymentAlreadyCompleted = errors.New("order: payment already completed")
	// ErrDuplicateCheckout reports a second order for the same cart version.
	ErrDuplicateCheckout       = fmt.Errorf("%w: cart already checked out", ErrConflict)
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// Item is an order line. Price is fixed at checkout.
type Item struct {
	BookID   string
	Quantity int
	Price    decimal.Decimal
}

type Order struct {
	ID                 string
	UserID             string
	Items              []Item
	TotalAmount        decimal.Decimal
	Status             Status
	PaymentStatus      payment.Status
	ShippingAddress    string
	ExternalPaymentRef string
	// IdempotencyKey identifies the cart snapshot the order was placed from.
	// Repositories keep it unique across orders.
	IdempotencyKey     string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ComputeTotal is the sum of price times quantity over items.
func ComputeTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func New(id, userID, shippingAddress string, items []Item) (*Order, error) {
	shippingAddress = strings.TrimSpace(shippingAddress)
	if shippingAddress == "" {
		return nil, ErrInvalidAddress
	}
	if len(items) == 0 {
		return nil, ErrInvalidItems
	}
	for _, it := range items {
		if it.BookID == "" || it.Quantity <= 0 || it.Price.IsNegative() {
			return nil, ErrInvalidItems
		}
	}

	now := time.Now().UTC()
	snapshot := append([]Item(nil), items...)
	return &Order{
		ID:              id,
		UserID:          userID,
		Items:           snapshot,
		TotalAmount:     ComputeTotal(snapshot),
		Status:          StatusPending,
		PaymentStatus:   payment.StatusPending,
		ShippingAddress: shippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CheckoutKey is the idempotency key of an order placed from version cartVersion of
// userID's cart.
func CheckoutKey(userID string, cartVersion int64) string {
	return fmt.Sprintf("%s:%d", userID, cartVersion)
}

// Cancel moves the order to cancelled. Paid orders and orders past processing are refused.
func (o *Order) Cancel() error {
	next, err := stateOf(o.Status).OnCancel(o)
	if err != nil {
		return err
	}
	o.Status = next.Status()
	o.touch()
	return nil
}

// SetStatus applies an administrative status change. Stage skipping is allowed.
func (o *Order) SetStatus(to Status) error {
	if _, ok := ParseStatus(string(to)); !ok {
		return ErrInvalidStatus
	}
	next, err := stateOf(o.Status).OnAdminUpdate(o, to)
	if err != nil {
		return err
	}
	o.Status = next.Status()
	o.touch()
	return nil
}

// SetPaymentStatus records a payment outcome and reports whether it changed anything.
func (o *Order) SetPaymentStatus(ps payment.Status) (bool, error) {
	if _, ok := payment.ParseStatus(string(ps)); !ok {
		return false, ErrInvalidPaymentStatus
	}
	if err := stateOf(o.Status).OnPaymentUpdate(o); err != nil {
		return false, err
	}
	if o.PaymentStatus == ps {
		return false, nil
	}
	o.PaymentStatus = ps
	o.touch()
	return true, nil
}

// AttachPaymentRef stores the gateway reference for a pending payment.
func (o *Order) AttachPaymentRef(ref string) error {
	if err := stateOf(o.Status).OnPaymentUpdate(o); err != nil {
		return err
	}
	if o.PaymentStatus == payment.StatusCompleted {
		return ErrPaymentAlreadyCompleted
	}
	o.ExternalPaymentRef = ref
	o.touch()
	return nil
}

func (o *Order) IsCancelled() bool { return o.Status == StatusCancelled }

func (o *Order) IsPaid() bool { return o.PaymentStatus == payment.StatusCompleted }

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
