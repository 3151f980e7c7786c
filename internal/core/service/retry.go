package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rl1809/checkout/internal/core/domain"
)

// RetryOnBusy calls fn until it returns something other than domain.ErrBusy,
// backing off exponentially for at most maxElapsed. When the budget runs out
// the last Busy error is returned.
func RetryOnBusy(ctx context.Context, maxElapsed time.Duration, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		err := fn()
		if err == nil || errors.Is(err, domain.ErrBusy) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}
