package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
	"github.com/and161185/ifcoins/internal/repository/memory"
)

func rewardFixture(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.New()
	seed(t, st, func(tx repository.Tx) {
		for i := 0; i < 30; i++ {
			tx.PutUser(student(fmt.Sprintf("s%02d", i), fmt.Sprintf("%d", 1000+i), "2A", 0))
		}
		tx.PutUser(student("solo", "42", "3B", 1))
		tx.PutUser(staff("teach", model.RoleTeacher))
		tx.PutUser(staff("root", model.RoleAdmin))
	})
	return st
}

func TestParseTarget(t *testing.T) {
	t.Parallel()
	got, err := ParseTarget(" 2024001 ")
	require.NoError(t, err)
	require.Equal(t, Target{Registration: "2024001"}, got)

	got, err = ParseTarget(" 2a ")
	require.NoError(t, err)
	require.Equal(t, Target{Class: "2A"}, got)

	_, err = ParseTarget("   ")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestIssueReward_WholeClass(t *testing.T) {
	t.Parallel()
	st := rewardFixture(t)
	svc := NewRewardService(st, repository.RetryPolicy{}, nil)
	ctx := context.Background()

	res, err := svc.IssueReward(ctx, as("teach"), "2a", 5, "participation")
	require.NoError(t, err)
	require.Equal(t, 30, res.StudentsRewarded)
	require.Len(t, res.Rewards, 30)

	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("s%02d", i)
		require.Equal(t, int64(5), user(t, st, id).Coins)
		rs, err := svc.Rewards(ctx, as(id), id)
		require.NoError(t, err)
		require.Len(t, rs, 1)
		require.Equal(t, "teach", rs[0].TeacherID)
		require.Equal(t, "participation", rs[0].Reason)
	}
	require.Equal(t, int64(1), user(t, st, "solo").Coins)
}

func TestIssueReward_ByRegistration(t *testing.T) {
	t.Parallel()
	st := rewardFixture(t)
	svc := NewRewardService(st, repository.RetryPolicy{}, nil)

	res, err := svc.IssueReward(context.Background(), as("root"), "42", 10, "  science fair ")
	require.NoError(t, err)
	require.Equal(t, 1, res.StudentsRewarded)
	require.Equal(t, "science fair", res.Rewards[0].Reason)
	require.Equal(t, int64(11), user(t, st, "solo").Coins)
}

func TestIssueReward_Rejections(t *testing.T) {
	t.Parallel()
	st := rewardFixture(t)
	svc := NewRewardService(st, repository.RetryPolicy{}, nil)
	ctx := context.Background()

	cases := []struct {
		who, target string
		coins       int64
		reason      string
		want        error
	}{
		{"teach", "2A", 0, "x", errs.ErrInvalidArgument},
		{"teach", "2A", 11, "x", errs.ErrInvalidArgument},
		{"teach", "2A", 3, "   ", errs.ErrInvalidArgument},
		{"teach", "9Z", 3, "x", errs.ErrNoMatchingStudents},
		{"teach", "777", 3, "x", errs.ErrNoMatchingStudents},
		{"solo", "2A", 3, "x", errs.ErrForbidden},
		{"ghost", "2A", 3, "x", errs.ErrUnauthorized},
	}
	for _, tc := range cases {
		_, err := svc.IssueReward(ctx, as(tc.who), tc.target, tc.coins, tc.reason)
		require.ErrorIs(t, err, tc.want, "%+v", tc)
	}
	for i := 0; i < 30; i++ {
		require.Zero(t, user(t, st, fmt.Sprintf("s%02d", i)).Coins)
	}
}

// abortingLedger runs the transaction body and then fails before commit.
type abortingLedger struct {
	*memory.Store
	err error
}

func (a abortingLedger) RunTx(ctx context.Context, fn func(context.Context, repository.Tx) error) error {
	return a.Store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return a.err
	})
}

func TestIssueReward_AllOrNothing(t *testing.T) {
	t.Parallel()
	st := rewardFixture(t)
	boom := errors.New("disk full")
	svc := NewRewardService(abortingLedger{Store: st, err: boom}, repository.RetryPolicy{}, nil)

	_, err := svc.IssueReward(context.Background(), as("teach"), "2A", 5, "participation")
	require.ErrorIs(t, err, boom)

	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("s%02d", i)
		require.Zero(t, user(t, st, id).Coins)
		rs, err := st.Rewards(context.Background(), id)
		require.NoError(t, err)
		require.Empty(t, rs)
	}
}

func TestRewards_Visibility(t *testing.T) {
	t.Parallel()
	st := rewardFixture(t)
	svc := NewRewardService(st, repository.RetryPolicy{}, nil)
	ctx := context.Background()

	_, err := svc.Rewards(ctx, as("solo"), "s01")
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = svc.Rewards(ctx, as("teach"), "s01")
	require.NoError(t, err)
	_, err = svc.Rewards(ctx, as("ghost"), "s01")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
