package order

import (
	"context"

	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
)

type IDGenerator interface {
	NewID() string
}

// Ledger is the inventory ledger as used by checkout and cancellation.
type Ledger interface {
	Book(ctx context.Context, bookID string) (*inventory.Book, error)
	Reserve(ctx context.Context, lines []inventory.Line) error
	Release(ctx context.Context, lines []inventory.Line) error
}

// CartClearer takes ordered lines out of a user's cart through the cart store so the
// cached copy follows.
type CartClearer interface {
	RemoveOrdered(ctx context.Context, id identity.Identity, lines []inventory.Line) (*cart.Cart, error)
}
