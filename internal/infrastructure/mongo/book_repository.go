package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type bookDocument struct {
	ID        string               `bson:"_id"`
	Price     primitive.Decimal128 `bson:"price"`
	Stock     int                  `bson:"stock"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

// BookRepository keeps stock counters in the books collection. Multi-line stock
// changes run in one transaction and every decrement is guarded by stock >= quantity.
type BookRepository struct {
	client *driver.Client
	coll   *driver.Collection
}

func NewBookRepository(db *driver.Database) *BookRepository {
	return &BookRepository{client: db.Client(), coll: db.Collection(booksCollection)}
}

func (r *BookRepository) Get(ctx context.Context, bookID string) (*domain.Book, error) {
	var doc bookDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": bookID}).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return nil, domain.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get book %s: %w", bookID, err)
	}

	price, err := fromDecimal128(doc.Price)
	if err != nil {
		return nil, err
	}
	return &domain.Book{ID: doc.ID, Price: price, Stock: doc.Stock, UpdatedAt: doc.UpdatedAt}, nil
}

func (r *BookRepository) Save(ctx context.Context, book *domain.Book) error {
	if book == nil {
		return nil
	}
	price, err := toDecimal128(book.Price)
	if err != nil {
		return err
	}
	doc := bookDocument{ID: book.ID, Price: price, Stock: book.Stock, UpdatedAt: time.Now().UTC()}
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": book.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongo: save book %s: %w", book.ID, err)
	}
	return nil
}

func (r *BookRepository) DeductAll(ctx context.Context, lines []domain.Line) error {
	return r.inTransaction(ctx, func(sc driver.SessionContext) error {
		now := time.Now().UTC()
		for _, l := range lines {
			if l.Quantity <= 0 {
				return domain.ErrInvalidQuantity
			}
			res, err := r.coll.UpdateOne(sc,
				bson.M{"_id": l.BookID, "stock": bson.M{"$gte": l.Quantity}},
				bson.M{"$inc": bson.M{"stock": -l.Quantity}, "$set": bson.M{"updated_at": now}},
			)
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return r.shortfall(sc, l)
			}
		}
		return nil
	})
}

func (r *BookRepository) RestockAll(ctx context.Context, lines []domain.Line) error {
	return r.inTransaction(ctx, func(sc driver.SessionContext) error {
		now := time.Now().UTC()
		for _, l := range lines {
			if l.Quantity <= 0 {
				return domain.ErrInvalidQuantity
			}
			res, err := r.coll.UpdateOne(sc,
				bson.M{"_id": l.BookID},
				bson.M{"$inc": bson.M{"stock": l.Quantity}, "$set": bson.M{"updated_at": now}},
			)
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return domain.BookNotFound(l.BookID)
			}
		}
		return nil
	})
}

// shortfall explains why a guarded decrement matched nothing.
func (r *BookRepository) shortfall(sc driver.SessionContext, l domain.Line) error {
	var doc bookDocument
	err := r.coll.FindOne(sc, bson.M{"_id": l.BookID}).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return domain.BookNotFound(l.BookID)
	}
	if err != nil {
		return err
	}
	return &domain.StockError{BookID: l.BookID, Requested: l.Quantity, Available: doc.Stock}
}

// inTransaction runs fn in a single transaction. The driver reruns fn on transient
// transaction errors and retries a commit whose outcome is unknown, so a commit that did
// apply is never reported as a failure. Write conflicts still failing once ctx ends
// surface as domain.ErrConflict for the ledger to retry.
func (r *BookRepository) inTransaction(ctx context.Context, fn func(driver.SessionContext) error) error {
	err := r.client.UseSession(ctx, func(sc driver.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(sc driver.SessionContext) (any, error) {
			return nil, fn(sc)
		}, options.Transaction().SetWriteConcern(writeconcern.Majority()))
		return err
	})
	switch {
	case err == nil:
		return nil
	case isDomainError(err):
		return err
	case isTransient(err):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return fmt.Errorf("mongo: stock transaction: %w", err)
	}
}

func isDomainError(err error) bool {
	var se *domain.StockError
	return errors.As(err, &se) ||
		errors.Is(err, domain.ErrBookNotFound) ||
		errors.Is(err, domain.ErrInvalidQuantity)
}
