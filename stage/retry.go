package stage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fateloom/fateloom/core"
)

// retryPolicy bounds provider call retries. Only transient errors (timeouts,
// 5xx-class) are retried; validation and fatal provider errors abort
// immediately.
type retryPolicy struct {
	maxTries     uint
	baseInterval time.Duration
	maxInterval  time.Duration
}

// do runs op with bounded exponential backoff, returning the result, the
// number of attempts made and the final error.
func (p retryPolicy) do(ctx context.Context, op func(context.Context) (string, error)) (string, int, error) {
	attempts := 0

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.baseInterval
	expo.MaxInterval = p.maxInterval

	out, err := backoff.Retry(ctx, func() (string, error) {
		attempts++
		res, err := op(ctx)
		if err != nil && !core.IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(p.maxTries))

	return out, attempts, err
}
