package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/application"
	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	cartService       = "cart-store"
	useCaseCartGet    = "cart.get"
	useCaseCartAdd    = "cart.add_item"
	useCaseCartUpdate = "cart.update_item"
	useCaseCartRemove = "cart.remove_item"
	useCaseCartClear  = "cart.clear"
	useCaseCartSettle = "cart.remove_ordered"
	cacheTimeout      = time.Second
)

// Catalog is the read side of the inventory ledger the cart needs.
type Catalog interface {
	Book(ctx context.Context, bookID string) (*inventory.Book, error)
}

// Service is the cart store. Each user owns exactly one cart, created on first write.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	catalog Catalog
	retry   application.RetryPolicy
	inst    *application.Instrumentation
	sfg     singleflight.Group
}

// NewService wires the store. cache may be nil.
func NewService(
	repo domain.Repository,
	cache domain.Cache,
	catalog Catalog,
	retry application.RetryPolicy,
	tel observability.Observability,
) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		retry:   retry,
		inst:    application.NewInstrumentation(tel, cartService),
	}
}

// Get returns the caller's cart, or an empty cart when none exists yet.
func (s *Service) Get(ctx context.Context, id identity.Identity) (_ *domain.Cart, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCartGet, "GetCart", attribute.String("cart.user_id", id.UserID))
	defer func() { exec.End(err) }()

	v, err, shared := s.sfg.Do(id.UserID, func() (any, error) {
		if s.cache != nil {
			cached, cerr := s.cache.Get(ctx, id.UserID)
			if cerr == nil {
				exec.Status("CACHE_HIT")
				return cached, nil
			}
			if !errors.Is(cerr, domain.ErrCacheMiss) {
				exec.Logger().Warn("cart_cache_get_failed", observability.Err(cerr))
			}
		}

		c, gerr := s.repo.Get(ctx, id.UserID)
		if errors.Is(gerr, domain.ErrNotFound) {
			return domain.New(id.UserID), nil
		}
		if gerr != nil {
			return nil, application.WrapRepository("get cart", gerr)
		}
		s.fill(ctx, exec, c)
		return c, nil
	})
	if err != nil {
		exec.Fail("REPOSITORY_FAILED")
		return nil, err
	}
	if shared {
		exec.Field("singleflight_shared", true)
	}
	return v.(*domain.Cart).Clone(), nil
}

// AddItem merges quantity into the caller's cart after checking it against current stock.
func (s *Service) AddItem(ctx context.Context, id identity.Identity, bookID string, quantity int) (_ *domain.Cart, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCartAdd, "AddItem",
		attribute.String("cart.user_id", id.UserID),
		attribute.String("book.id", bookID),
		attribute.Int("cart.quantity", quantity),
	)
	defer func() { exec.End(err) }()

	if strings.TrimSpace(bookID) == "" {
		exec.Fail("BOOK_ID_REQUIRED")
		return nil, application.NewValidation("bookId is required")
	}
	if quantity < 1 {
		exec.Fail("QUANTITY_INVALID")
		return nil, application.NewValidation("quantity must be at least 1")
	}

	c, err := s.mutate(ctx, id.UserID, func(ctx context.Context, c *domain.Cart) error {
		book, err := s.catalog.Book(ctx, bookID)
		if err != nil {
			return err
		}
		want := c.Quantity(bookID) + quantity
		if want > book.Stock {
			return &inventory.StockError{BookID: bookID, Requested: want, Available: book.Stock}
		}
		return c.Add(bookID, quantity, book.Price)
	})
	if err != nil {
		exec.Fail(failureStatus(err))
		return nil, err
	}
	return c, nil
}

// UpdateItem sets a line's quantity. Zero removes the line.
func (s *Service) UpdateItem(ctx context.Context, id identity.Identity, bookID string, quantity int) (_ *domain.Cart, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCartUpdate, "UpdateItem",
		attribute.String("cart.user_id", id.UserID),
		attribute.String("book.id", bookID),
		attribute.Int("cart.quantity", quantity),
	)
	defer func() { exec.End(err) }()

	if quantity < 0 {
		exec.Fail("QUANTITY_INVALID")
		return nil, application.NewValidation("quantity must not be negative")
	}

	c, err := s.mutate(ctx, id.UserID, func(ctx context.Context, c *domain.Cart) error {
		if c.Quantity(bookID) == 0 {
			return domain.ErrItemNotFound
		}
		if quantity == 0 {
			return c.Remove(bookID)
		}
		book, err := s.catalog.Book(ctx, bookID)
		if err != nil {
			return err
		}
		if quantity > book.Stock {
			return &inventory.StockError{BookID: bookID, Requested: quantity, Available: book.Stock}
		}
		return c.Update(bookID, quantity, book.Price)
	})
	if err != nil {
		exec.Fail(failureStatus(err))
		return nil, err
	}
	return c, nil
}

func (s *Service) RemoveItem(ctx context.Context, id identity.Identity, bookID string) (_ *domain.Cart, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCartRemove, "RemoveItem",
		attribute.String("cart.user_id", id.UserID),
		attribute.String("book.id", bookID),
	)
	defer func() { exec.End(err) }()

	c, err := s.mutate(ctx, id.UserID, func(_ context.Context, c *domain.Cart) error {
		return c.Remove(bookID)
	})
	if err != nil {
		exec.Fail(failureStatus(err))
		return nil, err
	}
	return c, nil
}

// Clear empties the caller's cart. Clearing an empty or missing cart succeeds.
func (s *Service) Clear(ctx context.Context, id identity.Identity) (_ *domain.Cart, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCartClear, "ClearCart", attribute.String("cart.user_id", id.UserID))
	defer func() { exec.End(err) }()

	c, err := s.mutate(ctx, id.UserID, func(_ context.Context, c *domain.Cart) error {
		c.Clear()
		return nil
	})
	if err != nil {
		exec.Fail(failureStatus(err))
		return nil, err
	}
	return c, nil
}

// RemoveOrdered takes the quantities of a placed order out of the caller's cart. Lines
// added or raised after checkout read the cart keep the difference.
func (s *Service) RemoveOrdered(ctx context.Context, id identity.Identity, lines []inventory.Line) (_ *domain.Cart, err error) {
	ctx, exec := s.inst.Start(ctx, useCaseCartSettle, "RemoveOrdered",
		attribute.String("cart.user_id", id.UserID),
		attribute.Int("cart.lines", len(lines)),
	)
	defer func() { exec.End(err) }()

	c, err := s.mutate(ctx, id.UserID, func(_ context.Context, c *domain.Cart) error {
		for _, l := range lines {
			c.Subtract(l.BookID, l.Quantity)
		}
		return nil
	})
	if err != nil {
		exec.Fail(failureStatus(err))
		return nil, err
	}
	return c, nil
}

// mutate runs a read-modify-write on the user's cart, retrying lost version races.
func (s *Service) mutate(ctx context.Context, userID string, fn func(ctx context.Context, c *domain.Cart) error) (*domain.Cart, error) {
	var out *domain.Cart
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		c, err := s.repo.Get(ctx, userID)
		existed := err == nil
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c = domain.New(userID)
		case err != nil:
			return application.WrapRepository("get cart", err)
		}

		if err := fn(ctx, c); err != nil {
			return err
		}
		if !existed && c.IsEmpty() {
			out = c
			return nil
		}
		if err := s.repo.Save(ctx, c); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return err
			}
			return application.WrapRepository("save cart", err)
		}
		out = c
		return nil
	}, func(err error) bool { return errors.Is(err, domain.ErrConflict) }, nil)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: retries exhausted", domain.ErrConflict)
		}
		return nil, err
	}

	if out.Version > 0 {
		s.refresh(ctx, out)
	}
	return out.Clone(), nil
}

func (s *Service) fill(ctx context.Context, exec *application.Execution, c *domain.Cart) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, c); err != nil {
		exec.Logger().Warn("cart_cache_set_failed", observability.Err(err))
	}
}

// refresh writes a saved cart through to the cache. Set never replaces a newer version,
// so a Get that read the repository before this write cannot put its copy back. When
// the write fails the entry is dropped instead.
func (s *Service) refresh(ctx context.Context, c *domain.Cart) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	logger := s.inst.Logger().With(observability.F("user_id", c.UserID))
	err := s.cache.Set(ctx, c)
	if err == nil {
		return
	}
	logger.Warn("cart_cache_set_failed", observability.Err(err))
	if err := s.cache.Delete(ctx, c.UserID); err != nil {
		logger.Warn("cart_cache_invalidate_failed", observability.Err(err))
	}
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, inventory.ErrBookNotFound):
		return "BOOK_NOT_FOUND"
	case errors.Is(err, domain.ErrItemNotFound):
		return "ITEM_NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		return "RETRIES_EXHAUSTED"
	case errors.Is(err, application.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidBook):
		return "INVALID_INPUT"
	default:
		return "REPOSITORY_FAILED"
	}
}
