package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
)

// BookRepository keeps stock counters in memory. Multi-line updates run under one lock,
// so they are all-or-nothing and never observed half applied.
type BookRepository struct {
	mu    sync.RWMutex
	books map[string]*domain.Book
}

func NewBookRepository(books ...*domain.Book) *BookRepository {
	r := &BookRepository{
		books: make(map[string]*domain.Book, len(books)),
	}
	for _, b := range books {
		if b != nil {
			r.books[b.ID] = b.Clone()
		}
	}
	return r
}

func (r *BookRepository) Get(ctx context.Context, bookID string) (*domain.Book, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[bookID]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	return book.Clone(), nil
}

func (r *BookRepository) Save(ctx context.Context, book *domain.Book) error {
	_ = ctx
	if book == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.books[book.ID] = book.Clone()
	return nil
}

func (r *BookRepository) DeductAll(ctx context.Context, lines []domain.Line) error {
	return r.applyAll(ctx, lines, (*domain.Book).Deduct)
}

func (r *BookRepository) RestockAll(ctx context.Context, lines []domain.Line) error {
	return r.applyAll(ctx, lines, (*domain.Book).Restock)
}

// applyAll runs op for every line on staged copies and stores them only when all succeed.
func (r *BookRepository) applyAll(ctx context.Context, lines []domain.Line, op func(*domain.Book, int) error) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]*domain.Book, len(lines))
	for _, l := range lines {
		book, ok := staged[l.BookID]
		if !ok {
			current, exists := r.books[l.BookID]
			if !exists {
				return domain.BookNotFound(l.BookID)
			}
			book = current.Clone()
			staged[l.BookID] = book
		}
		if err := op(book, l.Quantity); err != nil {
			return err
		}
	}

	for id, book := range staged {
		r.books[id] = book
	}
	return nil
}
