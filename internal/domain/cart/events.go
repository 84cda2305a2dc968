package cart

import (
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
)

// ClearRequestedEvent asks the cart worker to take an order's lines out of a cart after
// checkout could not do it inline.
type ClearRequestedEvent struct {
	UserID     string
	OrderID    string
	Lines      []inventory.Line
	OccurredAt time.Time
}

func (ClearRequestedEvent) EventName() string { return "cart.clear_requested" }

func NewClearRequestedEvent(userID, orderID string, lines []inventory.Line) ClearRequestedEvent {
	return ClearRequestedEvent{
		UserID:     userID,
		OrderID:    orderID,
		Lines:      append([]inventory.Line(nil), lines...),
		OccurredAt: time.Now().UTC(),
	}
}
