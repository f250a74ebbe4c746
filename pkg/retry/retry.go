// Package retry re-runs an operation that lost an optimistic concurrency race.
// Only CodeConcurrency errors are retried; business and validation failures
// return on the first attempt.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

const defaultBase = 15 * time.Millisecond

// Policy bounds how many extra attempts a conflicting operation gets.
type Policy struct {
	MaxRetries uint64
	Base       time.Duration
}

// OnConflict runs fn, retrying while it returns a concurrency conflict.
func OnConflict(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	base := policy.Base
	if base <= 0 {
		base = defaultBase
	}
	backoff := goretry.WithJitterPercent(25, goretry.NewExponential(base))
	backoff = goretry.WithMaxRetries(policy.MaxRetries, backoff)

	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if pkgerrors.CodeOf(err) == pkgerrors.CodeConcurrency {
			return goretry.RetryableError(err)
		}
		return err
	})
}
