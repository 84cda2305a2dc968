package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/application"
	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ledgerService  = "inventory-ledger"
	useCaseReserve = "inventory.reserve"
	useCaseRelease = "inventory.release"
	useCaseBook    = "inventory.book"
)

var (
	ErrInsufficientStock = domain.ErrInsufficientStock
	ErrBookNotFound      = domain.ErrBookNotFound
	ErrConflict          = domain.ErrConflict
)

// Ledger owns stock counters. Reserve and Release are all-or-nothing over their lines.
type Ledger struct {
	repo    domain.Repository
	retry   application.RetryPolicy
	inst    *application.Instrumentation
	retries observability.Counter // stock_reservation_retries_total{operation}
}

func NewLedger(repo domain.Repository, retry application.RetryPolicy, tel observability.Observability) *Ledger {
	inst := application.NewInstrumentation(tel, ledgerService)
	return &Ledger{
		repo:    repo,
		retry:   retry,
		inst:    inst,
		retries: inst.Metrics().Counter(observability.MStockRetries),
	}
}

// Book returns the current price and stock of a book.
func (l *Ledger) Book(ctx context.Context, bookID string) (_ *domain.Book, err error) {
	ctx, exec := l.inst.Start(ctx, useCaseBook, "Book", attribute.String("book.id", bookID))
	defer func() { exec.End(err) }()

	book, err := l.repo.Get(ctx, bookID)
	switch {
	case err == nil:
		return book, nil
	case errors.Is(err, domain.ErrBookNotFound):
		exec.Fail("BOOK_NOT_FOUND")
		return nil, domain.BookNotFound(bookID)
	default:
		exec.Fail("REPOSITORY_FAILED")
		return nil, application.WrapRepository("get book", err)
	}
}

// Reserve takes stock for every line or for none of them.
// A line that cannot be satisfied is reported as *inventory.StockError.
func (l *Ledger) Reserve(ctx context.Context, lines []domain.Line) (err error) {
	ctx, exec := l.inst.Start(ctx, useCaseReserve, "Reserve", attribute.Int("inventory.lines", len(lines)))
	defer func() { exec.End(err) }()

	normalized, nerr := domain.Normalize(lines)
	if nerr != nil {
		exec.Fail("LINES_INVALID")
		return fmt.Errorf("%w: %w", application.ErrInvalidInput, nerr)
	}

	err = l.retry.Do(ctx, func(ctx context.Context) error {
		return l.repo.DeductAll(ctx, normalized)
	}, isTransient, l.onRetry(exec, "reserve"))

	return l.classify(exec, "deduct stock", err)
}

// Release returns stock taken by a previous Reserve. Callers must release a reservation at most once.
func (l *Ledger) Release(ctx context.Context, lines []domain.Line) (err error) {
	ctx, exec := l.inst.Start(ctx, useCaseRelease, "Release", attribute.Int("inventory.lines", len(lines)))
	defer func() { exec.End(err) }()

	normalized, nerr := domain.Normalize(lines)
	if nerr != nil {
		exec.Fail("LINES_INVALID")
		return fmt.Errorf("%w: %w", application.ErrInvalidInput, nerr)
	}

	err = l.retry.Do(ctx, func(ctx context.Context) error {
		return l.repo.RestockAll(ctx, normalized)
	}, isTransient, l.onRetry(exec, "release"))

	return l.classify(exec, "restock", err)
}

func (l *Ledger) onRetry(exec *application.Execution, operation string) func(error, time.Duration) {
	return func(err error, wait time.Duration) {
		l.retries.Add(1, observability.L("operation", operation))
		exec.Logger().Warn("stock_update_retry",
			observability.F("operation", operation),
			observability.F("wait_ms", wait.Milliseconds()),
			observability.Err(err),
		)
	}
}

func (l *Ledger) classify(exec *application.Execution, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInsufficientStock):
		exec.Fail("INSUFFICIENT_STOCK")
		return err
	case errors.Is(err, domain.ErrBookNotFound):
		exec.Fail("BOOK_NOT_FOUND")
		return err
	case errors.Is(err, domain.ErrConflict):
		exec.Fail("RETRIES_EXHAUSTED")
		return fmt.Errorf("%w: retries exhausted", domain.ErrConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		exec.Fail("CONTEXT_CANCELED")
		return err
	default:
		exec.Fail("REPOSITORY_FAILED")
		return application.WrapRepository(op, err)
	}
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}
