package cart

import (
	"context"
	"errors"
)

// Repository persists one cart per user.
//
// Save is a compare-and-set on Version: it fails with ErrConflict when the stored
// version differs from cart.Version, and increments cart.Version on success.
// A cart with Version 0 is created and conflicts if one already exists.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
}

var ErrCacheMiss = errors.New("cart: cache miss")

// Cache is a read-side copy of carts keyed by user. Get returns ErrCacheMiss when absent.
// Set is a no-op when the cache already holds the same or a newer Version of the cart.
type Cache interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Set(ctx context.Context, cart *Cart) error
	Delete(ctx context.Context, userID string) error
}
