package inventory

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/bookstore-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability/logctx"
)

// Releaser is the part of the ledger the worker drives.
type Releaser interface {
	Release(ctx context.Context, lines []domain.Line) error
}

// Worker finishes releases that could not be completed inline.
type Worker struct {
	subscriber domoutbox.Subscriber
	ledger     Releaser
	log        observability.Logger
}

func NewWorker(subscriber domoutbox.Subscriber, ledger Releaser, logger observability.Logger) *Worker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Worker{
		subscriber: subscriber,
		ledger:     ledger,
		log:        logger.With(observability.F("service", "inventory_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.ledger == nil {
		return
	}
	w.subscriber.Subscribe(domain.ReleaseRequestedEvent{}.EventName(), w.handleReleaseRequested)
}

func (w *Worker) handleReleaseRequested(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domain.ReleaseRequestedEvent)
	if !ok {
		return nil
	}
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("order_id", evt.OrderID),
		observability.F("reason", evt.Reason),
	)

	if err := w.ledger.Release(ctx, evt.Lines); err != nil {
		// Stock stays short until reconciled by hand; the lines are logged for that.
		logger.Error("stock_release_abandoned",
			observability.F("lines", evt.Lines),
			observability.Err(err),
		)
		return fmt.Errorf("inventory worker: release for order %s: %w", evt.OrderID, err)
	}
	logger.Info("stock_release_completed")
	return nil
}
