package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/bookstore-orders/internal/application"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const useCaseCheckout = "order.checkout"

// Checkout turns the caller's cart into a pending order.
//
// Steps run as a saga: reserve stock, write the order, take the ordered lines out of the
// cart. A failed order write releases the reservation before returning. The order is
// keyed by the cart version it was built from, so a second checkout of the same cart
// releases its reservation and fails with ErrDuplicateCheckout. A failed cart update
// does not fail the checkout; it is retried and then handed to the cart worker.
func (s *Service) Checkout(ctx context.Context, id identity.Identity, shippingAddress string) (_ *domain.Order, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCheckout, "Checkout", attribute.String("order.user_id", id.UserID))
	defer func() {
		if err != nil {
			exec.Fail(failureStatus(err))
		}
		exec.End(err)
	}()

	if strings.TrimSpace(shippingAddress) == "" {
		return nil, fmt.Errorf("%w: %w", application.ErrInvalidInput, domain.ErrInvalidAddress)
	}

	c, err := s.carts.Get(ctx, id.UserID)
	switch {
	case errors.Is(err, cart.ErrNotFound):
		return nil, cart.ErrEmptyCart
	case err != nil:
		return nil, application.WrapRepository("get cart", err)
	case c.IsEmpty():
		return nil, cart.ErrEmptyCart
	}

	if err := s.precheck(ctx, c); err != nil {
		return nil, err
	}

	lines := make([]inventory.Line, 0, len(c.Items))
	items := make([]domain.Item, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, inventory.Line{BookID: it.BookID, Quantity: it.Quantity})
		items = append(items, domain.Item{BookID: it.BookID, Quantity: it.Quantity, Price: it.Price})
	}

	entity, err := domain.New(s.ids.NewID(), id.UserID, shippingAddress, items)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", application.ErrInvalidInput, err)
	}
	entity.IdempotencyKey = domain.CheckoutKey(id.UserID, c.Version)

	if err := s.ledger.Reserve(ctx, lines); err != nil {
		return nil, err
	}
	exec.Span().AddEvent("inventory.reserved")

	// The reservation now belongs to this call; finish the saga even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := s.insert(ctx, entity); err != nil {
		duplicate := errors.Is(err, domain.ErrDuplicateCheckout)
		step := "order_write"
		if duplicate {
			step = "duplicate_checkout"
		}
		s.compensations.Add(1, observability.L("step", step))
		exec.Logger().Warn("checkout_compensated",
			observability.F("order_id", entity.ID),
			observability.F("cart_version", c.Version),
			observability.Err(err),
		)
		s.release(ctx, exec, entity, inventory.ReasonCheckoutCompensated)
		if duplicate {
			return nil, err
		}
		return nil, application.WrapRepository("insert order", err)
	}
	exec.Field("order_id", entity.ID)
	exec.Span().AddEvent("order.created", trace.WithAttributes(attribute.String("order.id", entity.ID)))

	s.clearCart(ctx, exec, id, entity.ID, lines)
	s.notify(ctx, exec, domain.NewOrderCreatedEvent(entity))

	return entity.Clone(), nil
}

// precheck reports the first line whose current stock no longer covers the cart.
func (s *Service) precheck(ctx context.Context, c *cart.Cart) error {
	for _, it := range c.Items {
		book, err := s.ledger.Book(ctx, it.BookID)
		if err != nil {
			return err
		}
		if book.Stock < it.Quantity {
			return &inventory.StockError{BookID: it.BookID, Requested: it.Quantity, Available: book.Stock}
		}
	}
	return nil
}

// insert writes the order with bounded retries. A retry that finds its own order
// already stored counts as success. A duplicate checkout is final.
func (s *Service) insert(ctx context.Context, o *domain.Order) error {
	return s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		err := s.orders.Insert(ctx, o)
		if errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrDuplicateCheckout) {
			if stored, gerr := s.orders.Get(ctx, o.ID); gerr == nil && stored.UserID == o.UserID {
				*o = *stored
				return nil
			}
		}
		return err
	}, func(err error) bool {
		return !errors.Is(err, domain.ErrDuplicateCheckout) &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}, nil)
}

// clearCart removes the ordered lines from the cart. Items put in the cart while the
// checkout ran stay there.
func (s *Service) clearCart(ctx context.Context, exec *application.Execution, id identity.Identity, orderID string, lines []inventory.Line) {
	policy := s.cfg.Retry
	policy.MaxAttempts = s.cfg.CartClearAttempts

	err := policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.cartStore.RemoveOrdered(ctx, id, lines)
		return err
	}, nil, nil)
	if err == nil {
		return
	}

	s.compensations.Add(1, observability.L("step", "cart_clear"))
	exec.Status("CART_CLEAR_DEFERRED")
	logger := exec.Logger().With(observability.F("order_id", orderID))
	if perr := s.publish(ctx, exec, cart.NewClearRequestedEvent(id.UserID, orderID, lines)); perr != nil {
		logger.Error("cart_clear_lost",
			observability.Err(err),
			observability.F("publish_error", perr.Error()),
		)
		return
	}
	logger.Warn("cart_clear_retry_scheduled", observability.Err(err))
}
