package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rl1809/checkout/internal/core/domain"
)

func TestRetryOnBusy(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := RetryOnBusy(context.Background(), time.Second, func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("lock products: %w", domain.ErrBusy)
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := RetryOnBusy(context.Background(), time.Second, func() error {
			calls++
			return domain.ErrInsufficientStock
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up with busy", func(t *testing.T) {
		err := RetryOnBusy(context.Background(), 30*time.Millisecond, func() error {
			return domain.ErrBusy
		})
		assert.ErrorIs(t, err, domain.ErrBusy)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryOnBusy(ctx, time.Minute, func() error {
			calls++
			cancel()
			return domain.ErrBusy
		})
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 1, calls)
	})
}
