package cart

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/bookstore-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability/logctx"
)

// Settler is the part of the cart store the worker drives.
type Settler interface {
	RemoveOrdered(ctx context.Context, id identity.Identity, lines []inventory.Line) (*domain.Cart, error)
}

// Worker finishes cart clears that failed during checkout.
type Worker struct {
	subscriber domoutbox.Subscriber
	carts      Settler
	log        observability.Logger
}

func NewWorker(subscriber domoutbox.Subscriber, carts Settler, logger observability.Logger) *Worker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Worker{
		subscriber: subscriber,
		carts:      carts,
		log:        logger.With(observability.F("service", "cart_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.carts == nil {
		return
	}
	w.subscriber.Subscribe(domain.ClearRequestedEvent{}.EventName(), w.handleClearRequested)
}

func (w *Worker) handleClearRequested(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domain.ClearRequestedEvent)
	if !ok {
		return nil
	}
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("user_id", evt.UserID),
		observability.F("order_id", evt.OrderID),
	)

	owner := identity.Identity{UserID: evt.UserID, Role: identity.RoleUser}
	if _, err := w.carts.RemoveOrdered(ctx, owner, evt.Lines); err != nil {
		logger.Error("cart_clear_abandoned", observability.Err(err))
		return fmt.Errorf("cart worker: clear cart for %s: %w", evt.UserID, err)
	}
	logger.Info("cart_clear_completed")
	return nil
}
