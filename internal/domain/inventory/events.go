package inventory

import "time"

const (
	ReasonOrderCancelled      = "order_cancelled"
	ReasonCheckoutCompensated = "checkout_compensation"
)

// ReleaseRequestedEvent hands a release that could not be completed inline to the
// background worker. Exactly one is emitted per owed release.
type ReleaseRequestedEvent struct {
	OrderID    string
	Reason     string
	Lines      []Line
	OccurredAt time.Time
}

func (ReleaseRequestedEvent) EventName() string { return "inventory.release_requested" }

func NewReleaseRequestedEvent(orderID, reason string, lines []Line) ReleaseRequestedEvent {
	return ReleaseRequestedEvent{
		OrderID:    orderID,
		Reason:     reason,
		Lines:      append([]Line(nil), lines...),
		OccurredAt: time.Now().UTC(),
	}
}
