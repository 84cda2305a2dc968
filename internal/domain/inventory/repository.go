package inventory

import (
	"context"
)

// Repository stores books and their stock counters.
//
// DeductAll and RestockAll are all-or-nothing: either every line is applied or none is.
// DeductAll never lets a counter go below zero and reports the failing line as *StockError.
type Repository interface {
	Get(ctx context.Context, bookID string) (*Book, error)
	Save(ctx context.Context, book *Book) error
	DeductAll(ctx context.Context, lines []Line) error
	RestockAll(ctx context.Context, lines []Line) error
}
