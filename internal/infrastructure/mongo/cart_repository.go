package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
)

type cartItemDocument struct {
	BookID   string               `bson:"book_id"`
	Quantity int                  `bson:"quantity"`
	Price    primitive.Decimal128 `bson:"price"`
}

type cartDocument struct {
	UserID      string               `bson:"user_id"`
	Items       []cartItemDocument   `bson:"items"`
	TotalAmount primitive.Decimal128 `bson:"total_amount"`
	Version     int64                `bson:"version"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

// CartRepository stores one document per user, unique on user_id.
type CartRepository struct {
	coll *driver.Collection
}

func NewCartRepository(db *driver.Database) *CartRepository {
	return &CartRepository{coll: db.Collection(cartsCollection)}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDocument
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get cart %s: %w", userID, err)
	}
	return doc.toDomain()
}

func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	if cart == nil || cart.UserID == "" {
		return fmt.Errorf("cart repository: user id is required")
	}

	doc, err := newCartDocument(cart)
	if err != nil {
		return err
	}
	doc.Version = cart.Version + 1

	if cart.Version == 0 {
		if _, err := r.coll.InsertOne(ctx, doc); err != nil {
			if driver.IsDuplicateKeyError(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("mongo: insert cart %s: %w", cart.UserID, err)
		}
		cart.Version = doc.Version
		return nil
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"user_id": cart.UserID, "version": cart.Version}, doc)
	if err != nil {
		return fmt.Errorf("mongo: update cart %s: %w", cart.UserID, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrConflict
	}
	cart.Version = doc.Version
	return nil
}

func newCartDocument(c *domain.Cart) (cartDocument, error) {
	items := make([]cartItemDocument, 0, len(c.Items))
	for _, it := range c.Items {
		price, err := toDecimal128(it.Price)
		if err != nil {
			return cartDocument{}, err
		}
		items = append(items, cartItemDocument{BookID: it.BookID, Quantity: it.Quantity, Price: price})
	}
	total, err := toDecimal128(domain.ComputeTotal(c.Items))
	if err != nil {
		return cartDocument{}, err
	}
	return cartDocument{
		UserID:      c.UserID,
		Items:       items,
		TotalAmount: total,
		Version:     c.Version,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}, nil
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	items := make([]domain.Item, 0, len(d.Items))
	for _, it := range d.Items {
		price, err := fromDecimal128(it.Price)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.Item{BookID: it.BookID, Quantity: it.Quantity, Price: price})
	}
	// total_amount is kept for readers of the collection; the items are authoritative
	return &domain.Cart{
		UserID:      d.UserID,
		Items:       items,
		TotalAmount: domain.ComputeTotal(items),
		Version:     d.Version,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}
