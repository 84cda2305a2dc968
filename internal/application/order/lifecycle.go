package order

import (
	"context"

	"github.com/Zhima-Mochi/bookstore-orders/internal/application"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseGet          = "order.get"
	useCaseListAll      = "order.list_all"
	useCaseListMine     = "order.list_mine"
	useCaseCancel       = "order.cancel"
	useCaseUpdateStatus = "order.update_status"
)

// Get returns an order visible to the caller.
func (s *Service) Get(ctx context.Context, id identity.Identity, orderID string) (_ *domain.Order, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseGet, "GetOrder", attribute.String("order.id", orderID))
	defer func() {
		if err != nil {
			exec.Fail(failureStatus(err))
		}
		exec.End(err)
	}()

	return s.load(ctx, id, orderID)
}

// ListAll returns every order, newest first. Admin only.
func (s *Service) ListAll(ctx context.Context, id identity.Identity) (_ []*domain.Order, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseListAll, "ListOrders")
	defer func() {
		if err != nil {
			exec.Fail(failureStatus(err))
		}
		exec.End(err)
	}()

	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}
	orders, err := s.orders.List(ctx, domain.ListFilter{})
	if err != nil {
		return nil, application.WrapRepository("list orders", err)
	}
	exec.Field("count", len(orders))
	return orders, nil
}

// ListMine returns the caller's own orders, newest first.
func (s *Service) ListMine(ctx context.Context, id identity.Identity) (_ []*domain.Order, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseListMine, "ListMyOrders", attribute.String("order.user_id", id.UserID))
	defer func() {
		if err != nil {
			exec.Fail(failureStatus(err))
		}
		exec.End(err)
	}()

	orders, err := s.orders.List(ctx, domain.ListFilter{UserID: id.UserID})
	if err != nil {
		return nil, application.WrapRepository("list orders", err)
	}
	exec.Field("count", len(orders))
	return orders, nil
}

// Cancel cancels a pending or processing order and releases its stock exactly once.
// The status change is a compare-and-set, so a retried or concurrent cancel observes
// the cancelled status and fails without releasing again.
func (s *Service) Cancel(ctx context.Context, id identity.Identity, orderID string) (_ *domain.Order, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCancel, "CancelOrder",
		attribute.String("order.id", orderID),
		attribute.String("identity.role", string(id.Role)),
	)
	defer func() {
		if err != nil {
			exec.Fail(failureStatus(err))
		}
		exec.End(err)
	}()

	o, err := s.transition(ctx, orderID, func(o *domain.Order) (bool, error) {
		if !id.CanAccess(o.UserID) {
			return false, identity.ErrForbidden
		}
		return true, o.Cancel()
	})
	if err != nil {
		return nil, err
	}

	s.afterCancel(context.WithoutCancel(ctx), exec, o, id)
	return o, nil
}

// UpdateStatus is the administrative status change. Moving to cancelled goes through
// the same guards and stock release as Cancel.
func (s *Service) UpdateStatus(ctx context.Context, id identity.Identity, orderID, newStatus string) (_ *domain.Order, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseUpdateStatus, "UpdateOrderStatus",
		attribute.String("order.id", orderID),
		attribute.String("order.new_status", newStatus),
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
	to, ok := domain.ParseStatus(newStatus)
	if !ok {
		return nil, domain.ErrInvalidStatus
	}

	var from domain.Status
	o, err := s.transition(ctx, orderID, func(o *domain.Order) (bool, error) {
		from = o.Status
		if err := o.SetStatus(to); err != nil {
			return false, err
		}
		return o.Status != from, nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case o.Status == from:
		exec.Status("UNCHANGED")
	case o.IsCancelled():
		s.afterCancel(context.WithoutCancel(ctx), exec, o, id)
	default:
		s.notify(ctx, exec, domain.NewOrderStatusChangedEvent(o, from))
	}
	return o, nil
}

func (s *Service) afterCancel(ctx context.Context, exec *application.Execution, o *domain.Order, by identity.Identity) {
	s.release(ctx, exec, o, inventory.ReasonOrderCancelled)
	s.notify(ctx, exec, domain.NewOrderCancelledEvent(o, by.UserID))
}
