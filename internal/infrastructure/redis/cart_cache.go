package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	defaultTTL = 15 * time.Minute
	maxJitter  = 5 * time.Minute
)

// setIfNewer stores the entry unless the key already holds the same or a newer version.
var setIfNewer = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// CartCache keeps each cart as a hash under cart:<userID> holding its version and its
// JSON encoding. Each write picks a TTL of baseTTL plus up to five minutes of jitter so
// entries written together expire apart.
type CartCache struct {
	client  goredis.UniversalClient
	baseTTL time.Duration
}

func NewCartCache(client goredis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CartCache{client: client, baseTTL: ttl}
}

type cachedItem struct {
	BookID   string          `json:"book_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type cachedCart struct {
	UserID      string          `json:"user_id"`
	Items       []cachedItem    `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (c *CartCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := c.client.HGet(ctx, cacheKey(userID), "data").Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var entry cachedCart
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cached cart: %w", err)
	}
	return entry.toDomain(), nil
}

// Set writes cart unless the cache already holds the same or a newer version of it.
func (c *CartCache) Set(ctx context.Context, cart *domain.Cart) error {
	if cart == nil {
		return nil
	}
	data, err := json.Marshal(fromDomain(cart))
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	ttl := c.baseTTL + rand.N(maxJitter)
	err = setIfNewer.Run(ctx, c.client, []string{cacheKey(cart.UserID)},
		cart.Version, data, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (c *CartCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func fromDomain(c *domain.Cart) cachedCart {
	items := make([]cachedItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, cachedItem{BookID: it.BookID, Quantity: it.Quantity, Price: it.Price})
	}
	return cachedCart{
		UserID:      c.UserID,
		Items:       items,
		TotalAmount: c.TotalAmount,
		Version:     c.Version,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (e cachedCart) toDomain() *domain.Cart {
	items := make([]domain.Item, 0, len(e.Items))
	for _, it := range e.Items {
		items = append(items, domain.Item{BookID: it.BookID, Quantity: it.Quantity, Price: it.Price})
	}
	return &domain.Cart{
		UserID:      e.UserID,
		Items:       items,
		TotalAmount: e.TotalAmount,
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
