package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryOnConflictRetriesOnlyConflicts(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return ErrConcurrencyConflict
		}
		return nil
	}, WithBaseDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	boom := errors.New("boom")
	calls = 0
	err = RetryOnConflict(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrConcurrencyConflict
	}, WithMaxAttempts(3), WithBaseDelay(0))

	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, 3, calls)
}

func TestRetryOptionsValidate(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }
	assert.ErrorIs(t, RetryOnConflict(context.Background(), noop, WithMaxAttempts(0)), ErrInvalidMaxAttempts)
	assert.ErrorIs(t, RetryOnConflict(context.Background(), noop, WithBaseDelay(-1)), ErrNegativeBaseDelay)
	assert.ErrorIs(t, RetryOnConflict(context.Background(), noop, WithJitterFactor(2)), ErrInvalidJitterFactor)
}
