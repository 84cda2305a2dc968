package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
)

type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{
		carts: make(map[string]*domain.Cart),
	}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	_ = ctx
	if cart == nil || cart.UserID == "" {
		return fmt.Errorf("cart repository: user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.carts[cart.UserID]
	switch {
	case !exists && cart.Version != 0:
		return domain.ErrConflict
	case exists && current.Version != cart.Version:
		return domain.ErrConflict
	}

	cart.Version++
	r.carts[cart.UserID] = cart.Clone()
	return nil
}
