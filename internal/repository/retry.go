package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/and161185/ifcoins/internal/errs"
)

// RetryPolicy bounds transparent retries of optimistic-concurrency conflicts.
type RetryPolicy struct {
	Attempts int           // total attempts, >= 1 (default 3)
	Base     time.Duration // first backoff interval (default 5ms)
}

// maxBackoff caps a single wait between attempts.
const maxBackoff = 250 * time.Millisecond

// DefaultRetryPolicy is used when a zero policy is supplied.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Base: 5 * time.Millisecond}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultRetryPolicy.Attempts
	}
	if p.Base <= 0 {
		p.Base = DefaultRetryPolicy.Base
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	p = p.normalized()
	b := retry.NewExponential(p.Base)
	b = retry.WithCappedDuration(maxBackoff, b)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(uint64(p.Attempts-1), b)
}

// Retry runs op until it succeeds, fails with an error retryable does not accept, the attempts
// are exhausted (the last error is returned) or ctx is done.
func Retry(ctx context.Context, p RetryPolicy, retryable func(error) bool, op func(ctx context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsConflict reports whether err is an optimistic-concurrency conflict.
func IsConflict(err error) bool { return errors.Is(err, errs.ErrConflict) }

// Run executes fn as a ledger transaction, retrying conflicts within the policy bound.
func Run(ctx context.Context, l Ledger, p RetryPolicy, fn func(ctx context.Context, tx Tx) error) error {
	return Retry(ctx, p, IsConflict, func(ctx context.Context) error {
		return l.RunTx(ctx, fn)
	})
}
