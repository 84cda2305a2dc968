package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	calls, retries := 0, 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, func(err error) bool { return errors.Is(err, errTransient) },
		func(error, time.Duration) { retries++ })

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	}, func(error) bool { return true }, nil)

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, func(err error) bool { return errors.Is(err, errTransient) }, nil)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestNewValidation(t *testing.T) {
	err := NewValidation("quantity must be at least 1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "validation: quantity must be at least 1", err.Error())

	wrapped := WrapRepository("insert order", errTransient)
	assert.ErrorIs(t, wrapped, ErrRepository)
	assert.ErrorIs(t, wrapped, errTransient)
	assert.Nil(t, WrapRepository("noop", nil))
}
