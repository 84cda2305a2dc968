package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrBookNotFound      = errors.New("inventory: book not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInvalidBook       = errors.New("inventory: book id, price and stock must be valid")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrConflict signals a transient lost race inside the store; callers may retry.
	ErrConflict = errors.New("inventory: concurrent stock update")
)

// Book is the slice of a catalog entry the ledger cares about.
type Book struct {
	ID        string
	Price     decimal.Decimal
	Stock     int
	UpdatedAt time.Time
}

func NewBook(id string, price decimal.Decimal, stock int) (*Book, error) {
	if strings.TrimSpace(id) == "" || price.IsNegative() || stock < 0 {
		return nil, ErrInvalidBook
	}
	return &Book{
		ID:        id,
		Price:     price,
		Stock:     stock,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Deduct removes quantity units, refusing to take stock below zero.
func (b *Book) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > b.Stock {
		return &StockError{BookID: b.ID, Requested: quantity, Available: b.Stock}
	}
	b.Stock -= quantity
	b.touch()
	return nil
}

func (b *Book) Restock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	b.Stock += quantity
	b.touch()
	return nil
}

func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

func (b *Book) touch() {
	b.UpdatedAt = time.Now().UTC()
}

// Line is one {book, quantity} pair of a reservation or release.
type Line struct {
	BookID   string
	Quantity int
}

// Normalize validates lines and merges duplicates, keeping first-seen order.
func Normalize(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidQuantity
	}
	index := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.BookID) == "" {
			return nil, ErrInvalidBook
		}
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[l.BookID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.BookID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

// StockError identifies the line that could not be satisfied.
type StockError struct {
	BookID    string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for book %s: requested %d, available %d",
		e.BookID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// BookNotFound wraps ErrBookNotFound with the missing id.
func BookNotFound(bookID string) error {
	return fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
}
