package order

import "context"

// ListFilter narrows List. An empty UserID lists every order.
type ListFilter struct {
	UserID string
}

// Repository persists orders. Orders are never deleted.
//
// Update is a compare-and-set on Version: it fails with ErrConflict when the stored
// version differs from order.Version and increments order.Version on success.
//
// Insert fails with ErrConflict when the ID is taken and with ErrDuplicateCheckout when
// another order already carries the same non-empty IdempotencyKey.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	// List returns orders newest first.
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
}
