// Package mongo stores books, carts and orders in MongoDB.
//
// Book reservations use multi-document transactions, so the server must run as a
// replica set (a single-node set is enough).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	booksCollection  = "books"
	cartsCollection  = "carts"
	ordersCollection = "orders"
	idempotencyIndex = "orders_idempotency_key"

	transientTxnLabel = "TransientTransactionError"
)

// Connect opens a client, verifies it with a ping and returns the named database.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*driver.Database, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout / 2).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := driver.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return client.Database(database), nil
}

// EnsureIndexes creates the indexes the repositories rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *driver.Database) error {
	if _, err := db.Collection(cartsCollection).Indexes().CreateOne(ctx, driver.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("mongo: carts index: %w", err)
	}
	if _, err := db.Collection(ordersCollection).Indexes().CreateOne(ctx, driver.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("mongo: orders index: %w", err)
	}
	if _, err := db.Collection(ordersCollection).Indexes().CreateOne(ctx, driver.IndexModel{
		Keys: bson.D{{Key: "idempotency_key", Value: 1}},
		Options: options.Index().
			SetName(idempotencyIndex).
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
	}); err != nil {
		return fmt.Errorf("mongo: orders idempotency index: %w", err)
	}
	return nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("mongo: encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("mongo: decode decimal %s: %w", v, err)
	}
	return d, nil
}

func isTransient(err error) bool {
	var se driver.ServerError
	return errors.As(err, &se) && se.HasErrorLabel(transientTxnLabel)
}
