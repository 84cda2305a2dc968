package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/application"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/bookstore-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
)

const (
	orderService    = "order-service"
	publishPeer     = "outbox"
	publishTimeout  = 300 * time.Millisecond
	defaultCurrency = "INR"
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrConflict   = domain.ErrConflict
	ErrRepository = application.ErrRepository
)

// Config tunes retries and payment defaults.
type Config struct {
	Retry             application.RetryPolicy
	CartClearAttempts int
	Currency          string
}

// Deps are the collaborators of the order service. Publisher and Bridge may be nil.
type Deps struct {
	Orders    domain.Repository
	Carts     cart.Repository
	CartStore CartClearer
	Ledger    Ledger
	Bridge    payment.Bridge
	IDs       IDGenerator
	Publisher domoutbox.Publisher
}

// Service orchestrates checkout and owns the order and payment state machine.
type Service struct {
	orders    domain.Repository
	carts     cart.Repository
	cartStore CartClearer
	ledger    Ledger
	bridge    payment.Bridge
	ids       IDGenerator
	publisher domoutbox.Publisher
	cfg       Config

	inst          *application.Instrumentation
	compensations observability.Counter   // checkout_compensations_total{step}
	extCounter    observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram  observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewService(deps Deps, cfg Config, tel observability.Observability) *Service {
	if cfg.CartClearAttempts < 1 {
		cfg.CartClearAttempts = 3
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = application.DefaultRetryPolicy()
	}

	inst := application.NewInstrumentation(tel, orderService)
	metrics := inst.Metrics()
	return &Service{
		orders:        deps.Orders,
		carts:         deps.Carts,
		cartStore:     deps.CartStore,
		ledger:        deps.Ledger,
		bridge:        deps.Bridge,
		ids:           deps.IDs,
		publisher:     deps.Publisher,
		cfg:           cfg,
		inst:          inst,
		compensations: metrics.Counter(observability.MCheckoutCompensations),
		extCounter:    metrics.Counter(observability.MExternalRequests),
		extHistogram:  metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// transition applies fn to the freshest copy of an order and persists it with a version
// compare-and-set. When another writer wins, the order is reloaded and fn re-evaluated.
// fn reports whether it changed the order; unchanged orders are not written.
func (s *Service) transition(ctx context.Context, orderID string, fn func(o *domain.Order) (bool, error)) (*domain.Order, error) {
	var out *domain.Order
	err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		o, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		changed, err := fn(o)
		if err != nil {
			return err
		}
		if changed {
			if err := s.orders.Update(ctx, o); err != nil {
				return err
			}
		}
		out = o
		return nil
	}, func(err error) bool { return errors.Is(err, domain.ErrConflict) }, nil)

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, domain.ErrConflict):
		return nil, fmt.Errorf("%w: retries exhausted", domain.ErrConflict)
	case isBusinessError(err):
		return nil, err
	default:
		return nil, application.WrapRepository("update order", err)
	}
}

// load fetches an order the caller may see.
func (s *Service) load(ctx context.Context, id identity.Identity, orderID string) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, application.WrapRepository("get order", err)
	}
	if !id.CanAccess(o.UserID) {
		return nil, identity.ErrForbidden
	}
	return o, nil
}

// release returns an order's stock. When the ledger cannot do it inline the release is
// handed to the inventory worker; the owed release is never dropped silently.
func (s *Service) release(ctx context.Context, exec *application.Execution, o *domain.Order, reason string) {
	lines := linesOf(o.Items)
	err := s.ledger.Release(ctx, lines)
	if err == nil {
		return
	}

	exec.Status("RELEASE_DEFERRED")
	logger := exec.Logger().With(
		observability.F("order_id", o.ID),
		observability.F("reason", reason),
	)
	if perr := s.publish(ctx, exec, inventory.NewReleaseRequestedEvent(o.ID, reason, lines)); perr != nil {
		logger.Error("stock_release_lost",
			observability.F("lines", lines),
			observability.Err(err),
			observability.F("publish_error", perr.Error()),
		)
		return
	}
	logger.Warn("stock_release_retry_scheduled", observability.Err(err))
}

func (s *Service) publish(ctx context.Context, exec *application.Execution, e domoutbox.Event) error {
	if s.publisher == nil {
		return errors.New("order: no event publisher configured")
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err := s.publisher.Publish(pubCtx, e)
	if err != nil {
		outcome = "error"
		exec.Field("event_publish_error", err.Error())
	}

	s.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)
	return err
}

// notify publishes a best-effort domain event.
func (s *Service) notify(ctx context.Context, exec *application.Execution, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publish(ctx, exec, e); err != nil {
		exec.Logger().Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.Err(err),
		)
	}
}

func linesOf(items []domain.Item) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, inventory.Line{BookID: it.BookID, Quantity: it.Quantity})
	}
	return lines
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidState,
		domain.ErrInvalidStatus,
		domain.ErrInvalidPaymentStatus,
		domain.ErrPaymentAlreadyCompleted,
		identity.ErrForbidden,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, application.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, cart.ErrEmptyCart):
		return "EMPTY_CART"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, inventory.ErrBookNotFound):
		return "BOOK_NOT_FOUND"
	case errors.Is(err, domain.ErrDuplicateCheckout):
		return "DUPLICATE_CHECKOUT"
	case errors.Is(err, inventory.ErrConflict), errors.Is(err, domain.ErrConflict):
		return "RETRIES_EXHAUSTED"
	case errors.Is(err, domain.ErrNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, identity.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, domain.ErrAlreadyCancelled):
		return "ALREADY_CANCELLED"
	case errors.Is(err, domain.ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, domain.ErrInvalidPaymentStatus):
		return "INVALID_STATUS"
	case errors.Is(err, domain.ErrPaymentAlreadyCompleted):
		return "PAYMENT_ALREADY_COMPLETED"
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return "PAYMENT_BRIDGE_FAILED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_CANCELED"
	default:
		return "REPOSITORY_FAILED"
	}
}
