package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/ifcoins/internal/errs"
)

type scriptedLedger struct {
	errs  []error
	calls int
}

func (l *scriptedLedger) RunTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	l.calls++
	if len(l.errs) == 0 {
		return nil
	}
	err := l.errs[0]
	l.errs = l.errs[1:]
	return err
}

var fast = RetryPolicy{Attempts: 3, Base: time.Microsecond}

func TestRun_RetriesConflictThenSucceeds(t *testing.T) {
	l := &scriptedLedger{errs: []error{errs.ErrConflict, fmt.Errorf("users/u1: %w", errs.ErrConflict)}}
	err := Run(context.Background(), l, fast, func(context.Context, Tx) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 3, l.calls)
}

func TestRun_ExhaustedReturnsConflict(t *testing.T) {
	l := &scriptedLedger{errs: []error{errs.ErrConflict, errs.ErrConflict, errs.ErrConflict, errs.ErrConflict}}
	err := Run(context.Background(), l, fast, func(context.Context, Tx) error { return nil })
	require.ErrorIs(t, err, errs.ErrConflict)
	require.Equal(t, 3, l.calls)
}

func TestRun_NonConflictNotRetried(t *testing.T) {
	l := &scriptedLedger{errs: []error{errs.ErrInsufficientFunds}}
	err := Run(context.Background(), l, fast, func(context.Context, Tx) error { return nil })
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
	require.Equal(t, 1, l.calls)
}

func TestRetry_ZeroPolicyUsesDefaults(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Base: time.Microsecond}, func(error) bool { return true },
		func(context.Context) error {
			calls++
			return errors.New("always")
		})
	require.Error(t, err)
	require.Equal(t, DefaultRetryPolicy.Attempts, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, fast, IsConflict, func(context.Context) error { return errs.ErrConflict })
	require.Error(t, err)
}
