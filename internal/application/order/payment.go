package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/payment"
	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseUpdatePayment = "order.update_payment_status"
	useCaseCreateIntent  = "payment.create_intent"
	useCaseVerify        = "payment.verify"
)

// PaymentIntent is the result of preparing a charge for an order.
type PaymentIntent struct {
	Order  *domain.Order
	Intent payment.Intent
}

// UpdatePaymentStatus is the administrative payment change.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id identity.Identity, orderID, newPaymentStatus string) (_ *domain.Order, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseUpdatePayment, "UpdatePaymentStatus",
		attribute.String("order.id", orderID),
		attribute.String("order.new_payment_status", newPaymentStatus),
	)
	defer func() {
		if err != nil {
			exec.Fail(failureStatus(err))
		}
		exec.End(err)
	}()

	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}
	ps, ok := payment.ParseStatus(newPaymentStatus)
	if !ok {
		return nil, domain.ErrInvalidPaymentStatus
	}

	o, paid, err := s.recordPayment(ctx, orderID, ps, false)
	if err != nil {
		return nil, err
	}
	if paid {
		s.notify(ctx, exec, domain.NewOrderPaidEvent(o))
	}
	return o, nil
}

// CreatePaymentIntent asks the payment bridge for a reference and stores it on the order.
func (s *Service) CreatePaymentIntent(ctx context.Context, id identity.Identity, orderID string) (_ *PaymentIntent, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCreateIntent, "CreatePaymentIntent", attribute.String("order.id", orderID))
	defer func() {
		if err != nil {
			exec.Fail(failureStatus(err))
		}
		exec.End(err)
	}()

	o, err := s.load(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsCancelled() {
		return nil, domain.ErrAlreadyCancelled
	}
	if o.IsPaid() {
		return nil, domain.ErrPaymentAlreadyCompleted
	}

	intent, err := payment.NewIntent(o.ID, o.TotalAmount, s.cfg.Currency)
	if err != nil {
		return nil, err
	}
	ref, err := s.bridge.CreateIntent(ctx, intent)
	if err != nil {
		return nil, gatewayError(err)
	}

	o, err = s.transition(ctx, orderID, func(o *domain.Order) (bool, error) {
		return true, o.AttachPaymentRef(ref)
	})
	if err != nil {
		return nil, err
	}
	exec.Field("external_ref", ref)
	return &PaymentIntent{Order: o, Intent: intent}, nil
}

// VerifyPayment asks the bridge for the payment outcome and records it. An order that
// is already paid is returned unchanged without contacting the bridge.
func (s *Service) VerifyPayment(ctx context.Context, id identity.Identity, orderID string) (_ *domain.Order, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseVerify, "VerifyPayment", attribute.String("order.id", orderID))
	defer func() {
		if err != nil {
			exec.Fail(failureStatus(err))
		}
		exec.End(err)
	}()

	o, err := s.load(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsPaid() {
		exec.Status("ALREADY_COMPLETED")
		return o, nil
	}
	if o.IsCancelled() {
		return nil, domain.ErrAlreadyCancelled
	}

	ps, err := s.bridge.Verify(ctx, o.ID, o.ExternalPaymentRef)
	if err != nil {
		return nil, gatewayError(err)
	}
	if ps == payment.StatusPending {
		exec.Status("STILL_PENDING")
		return o, nil
	}

	o, paid, err := s.recordPayment(ctx, orderID, ps, true)
	if err != nil {
		return nil, err
	}
	if paid {
		s.notify(ctx, exec, domain.NewOrderPaidEvent(o))
	}
	return o, nil
}

// recordPayment stores a payment outcome and reports whether the order became paid by
// this call. With keepCompleted, a completed payment is never downgraded.
func (s *Service) recordPayment(ctx context.Context, orderID string, ps payment.Status, keepCompleted bool) (*domain.Order, bool, error) {
	var paid bool
	o, err := s.transition(ctx, orderID, func(o *domain.Order) (bool, error) {
		paid = false
		if keepCompleted && o.IsPaid() {
			return false, nil
		}
		wasPaid := o.IsPaid()
		changed, err := o.SetPaymentStatus(ps)
		if err != nil {
			return false, err
		}
		paid = changed && !wasPaid && o.IsPaid()
		return changed, nil
	})
	if err != nil {
		return nil, false, err
	}
	return o, paid, nil
}

func gatewayError(err error) error {
	if errors.Is(err, payment.ErrGatewayUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", payment.ErrGatewayUnavailable, err)
}
