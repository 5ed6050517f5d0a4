package migration

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff applied to transient store
// failures: batch scans, checkpoint saves, and conditional write conflicts.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is tuned for a store a few milliseconds away. Conflict
// retries re-read the record between attempts, so a handful of attempts is
// enough to converge.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultRetryPolicy().InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultRetryPolicy().MaxInterval
	}
	return p
}

// Do runs op with exponential backoff until it succeeds, returns a permanent
// error, the attempt budget is spent, or the context ends. Wrap unrecoverable
// errors with backoff.Permanent to stop early.
func (p RetryPolicy) Do(ctx context.Context, op backoff.Operation) error {
	p = p.normalized()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.MaxAttempts-1), ctx))
}
