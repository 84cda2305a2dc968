package order

import "fmt"

// OrderState implements the state pattern for order lifecycle transitions.
type OrderState interface {
	Status() Status
	OnCancel(o *Order) (OrderState, error)
	OnAdminUpdate(o *Order, to Status) (OrderState, error)
	OnPaymentUpdate(o *Order) error
}

func stateOf(s Status) OrderState {
	switch s {
	case StatusProcessing:
		return processingState{}
	case StatusShipped:
		return shippedState{}
	case StatusDelivered:
		return deliveredState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return pendingState{}
	}
}

// cancellable is shared by pending and processing.
func cancellable(o *Order) (OrderState, error) {
	if o.IsPaid() {
		return nil, ErrPaymentAlreadyCompleted
	}
	return cancelledState{}, nil
}

func adminMove(o *Order, to Status) (OrderState, error) {
	if to == StatusCancelled {
		return stateOf(o.Status).OnCancel(o)
	}
	return stateOf(to), nil
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnCancel(o *Order) (OrderState, error) { return cancellable(o) }

func (pendingState) OnAdminUpdate(o *Order, to Status) (OrderState, error) { return adminMove(o, to) }

func (pendingState) OnPaymentUpdate(*Order) error { return nil }

type processingState struct{}

func (processingState) Status() Status { return StatusProcessing }

func (processingState) OnCancel(o *Order) (OrderState, error) { return cancellable(o) }

func (processingState) OnAdminUpdate(o *Order, to Status) (OrderState, error) {
	return adminMove(o, to)
}

func (processingState) OnPaymentUpdate(*Order) error { return nil }

type shippedState struct{}

func (shippedState) Status() Status { return StatusShipped }

func (shippedState) OnCancel(*Order) (OrderState, error) {
	return nil, fmt.Errorf("%w: order already shipped", ErrInvalidState)
}

func (shippedState) OnAdminUpdate(o *Order, to Status) (OrderState, error) { return adminMove(o, to) }

func (shippedState) OnPaymentUpdate(*Order) error { return nil }

type deliveredState struct{}

func (deliveredState) Status() Status { return StatusDelivered }

func (deliveredState) OnCancel(*Order) (OrderState, error) {
	return nil, fmt.Errorf("%w: order already delivered", ErrInvalidState)
}

func (deliveredState) OnAdminUpdate(o *Order, to Status) (OrderState, error) {
	return adminMove(o, to)
}

func (deliveredState) OnPaymentUpdate(*Order) error { return nil }

// cancelledState is terminal.
type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) OnCancel(*Order) (OrderState, error) { return nil, ErrAlreadyCancelled }

func (cancelledState) OnAdminUpdate(*Order, Status) (OrderState, error) {
	return nil, ErrAlreadyCancelled
}

func (cancelledState) OnPaymentUpdate(*Order) error { return ErrAlreadyCancelled }
