// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts, logging every failed attempt.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Policy bounds a retried operation.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, the policy's
// attempts are used up or ctx ends. The last error is returned.
func Do(ctx context.Context, logger *zap.Logger, name string, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		logger.Warn("Attempt failed",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Int("of", attempts),
			zap.Error(err),
		)
		return err
	}, b)
	if err != nil {
		return err
	}
	if attempt > 1 {
		logger.Info("Succeeded after retry", zap.String("op", name), zap.Int("attempt", attempt))
	}
	return nil
}
