package order

import "time"

// OrderCreatedEvent is emitted once checkout has durably recorded the order.
type OrderCreatedEvent struct {
	OrderID     string
	UserID      string
	TotalAmount string
	ItemCount   int
	OccurredAt  time.Time
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.String(),
		ItemCount:   len(o.Items),
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderCancelledEvent is emitted after the cancellation has been persisted.
type OrderCancelledEvent struct {
	OrderID     string
	UserID      string
	CancelledBy string
	OccurredAt  time.Time
}

func (OrderCancelledEvent) EventName() string { return "order.cancelled" }

func NewOrderCancelledEvent(o *Order, cancelledBy string) OrderCancelledEvent {
	return OrderCancelledEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		CancelledBy: cancelledBy,
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderPaidEvent is emitted when the payment status first becomes completed.
type OrderPaidEvent struct {
	OrderID     string
	ExternalRef string
	OccurredAt  time.Time
}

func (OrderPaidEvent) EventName() string { return "order.paid" }

func NewOrderPaidEvent(o *Order) OrderPaidEvent {
	return OrderPaidEvent{
		OrderID:     o.ID,
		ExternalRef: o.ExternalPaymentRef,
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderStatusChangedEvent records an administrative status move.
type OrderStatusChangedEvent struct {
	OrderID    string
	From       Status
	To         Status
	OccurredAt time.Time
}

func (OrderStatusChangedEvent) EventName() string { return "order.status_changed" }

func NewOrderStatusChangedEvent(o *Order, from Status) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:    o.ID,
		From:       from,
		To:         o.Status,
		OccurredAt: time.Now().UTC(),
	}
}
