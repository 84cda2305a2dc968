package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/payment"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type orderItemDocument struct {
	BookID   string               `bson:"book_id"`
	Quantity int                  `bson:"quantity"`
	Price    primitive.Decimal128 `bson:"price_snapshot"`
}

type orderDocument struct {
	ID                 string               `bson:"_id"`
	UserID             string               `bson:"user_id"`
	Items              []orderItemDocument  `bson:"items"`
	TotalAmount        primitive.Decimal128 `bson:"total_amount"`
	Status             string               `bson:"status"`
	PaymentStatus      string               `bson:"payment_status"`
	ShippingAddress    string               `bson:"shipping_address"`
	ExternalPaymentRef string               `bson:"external_payment_ref,omitempty"`
	IdempotencyKey     string               `bson:"idempotency_key,omitempty"`
	Version            int64                `bson:"version"`
	CreatedAt          time.Time            `bson:"created_at"`
	UpdatedAt          time.Time            `bson:"updated_at"`
}

type OrderRepository struct {
	coll *driver.Collection
}

func NewOrderRepository(db *driver.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(ordersCollection)}
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	doc, err := newOrderDocument(order)
	if err != nil {
		return err
	}
	doc.Version = 1

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return r.duplicate(ctx, order.ID)
		}
		return fmt.Errorf("mongo: insert order %s: %w", order.ID, err)
	}
	order.Version = 1
	return nil
}

// duplicate tells an _id clash from a clash on the idempotency key index.
func (r *OrderRepository) duplicate(ctx context.Context, id string) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo: insert order %s: %w", id, err)
	}
	if n > 0 {
		return domain.ErrConflict
	}
	return domain.ErrDuplicateCheckout
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	var doc orderDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get order %s: %w", id, err)
	}
	return doc.toDomain()
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	doc, err := newOrderDocument(order)
	if err != nil {
		return err
	}
	doc.Version = order.Version + 1

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": order.ID, "version": order.Version}, doc)
	if err != nil {
		return fmt.Errorf("mongo: update order %s: %w", order.ID, err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": order.ID})
		if err != nil {
			return fmt.Errorf("mongo: update order %s: %w", order.ID, err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	order.Version = doc.Version
	return nil
}

func (r *OrderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list orders: %w", err)
	}
	var docs []orderDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: list orders: %w", err)
	}

	out := make([]*domain.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func newOrderDocument(o *domain.Order) (orderDocument, error) {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, it := range o.Items {
		price, err := toDecimal128(it.Price)
		if err != nil {
			return orderDocument{}, err
		}
		items = append(items, orderItemDocument{BookID: it.BookID, Quantity: it.Quantity, Price: price})
	}
	total, err := toDecimal128(o.TotalAmount)
	if err != nil {
		return orderDocument{}, err
	}
	return orderDocument{
		ID:                 o.ID,
		UserID:             o.UserID,
		Items:              items,
		TotalAmount:        total,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		ShippingAddress:    o.ShippingAddress,
		ExternalPaymentRef: o.ExternalPaymentRef,
		IdempotencyKey:     o.IdempotencyKey,
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}, nil
}

func (d orderDocument) toDomain() (*domain.Order, error) {
	items := make([]domain.Item, 0, len(d.Items))
	for _, it := range d.Items {
		price, err := fromDecimal128(it.Price)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.Item{BookID: it.BookID, Quantity: it.Quantity, Price: price})
	}
	total, err := fromDecimal128(d.TotalAmount)
	if err != nil {
		return nil, err
	}
	return &domain.Order{
		ID:                 d.ID,
		UserID:             d.UserID,
		Items:              items,
		TotalAmount:        total,
		Status:             domain.Status(d.Status),
		PaymentStatus:      payment.Status(d.PaymentStatus),
		ShippingAddress:    d.ShippingAddress,
		ExternalPaymentRef: d.ExternalPaymentRef,
		IdempotencyKey:     d.IdempotencyKey,
		Version:            d.Version,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}, nil
}
