package application

import (
	"context"
	"errors"
	"fmt"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

var (
	ErrInvalidInput = errors.New("validation")
	ErrRepository   = errors.New("repository failure")
)

// NewValidation reports malformed or missing input.
func NewValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// WrapRepository marks an unexpected storage failure as internal.
func WrapRepository(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrRepository, op, err)
}
