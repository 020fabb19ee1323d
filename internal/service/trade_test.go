package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
	"github.com/and161185/ifcoins/internal/repository/memory"
)

// tradeFixture: alice owns 2 A and 10 coins, bob owns 5 B and 3 coins.
func tradeFixture(t *testing.T) (*memory.Store, *TradeServiceImpl) {
	t.Helper()
	st := memory.New()
	seed(t, st, func(tx repository.Tx) {
		alice := student("alice", "1", "7A", 10)
		alice.CollectionSize = 2
		bob := student("bob", "2", "7A", 3)
		bob.CollectionSize = 5
		tx.PutUser(alice)
		tx.PutUser(bob)
		tx.PutUser(student("carol", "3", "7B", 0))
		tx.PutUser(staff("teach", model.RoleTeacher))
		tx.PutUser(staff("root", model.RoleAdmin))
		tx.PutCard(model.Card{ID: "A", Rarity: model.RarityRare, Available: true})
		tx.PutCard(model.Card{ID: "B", Rarity: model.RarityCommon, Available: true})
		own(tx, "alice", "A", 2)
		own(tx, "bob", "B", 5)
	})
	return st, NewTradeService(st, repository.RetryPolicy{}, nil)
}

var aliceForBob = Proposal{
	ToUserID:       "bob",
	OfferedCards:   model.CardSet{"A": 2},
	OfferedCoins:   10,
	RequestedCards: model.CardSet{"B": 5},
}

func TestPropose_Validation(t *testing.T) {
	t.Parallel()
	_, svc := tradeFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		who  string
		in   Proposal
		want error
	}{
		{"self", "alice", Proposal{ToUserID: "alice", OfferedCoins: 1}, errs.ErrSelfTrade},
		{"nothing offered", "alice", Proposal{ToUserID: "bob", RequestedCards: model.CardSet{"B": 1}}, errs.ErrInvalidProposal},
		{"negative coins", "alice", Proposal{ToUserID: "bob", OfferedCoins: 1, RequestedCoins: -1}, errs.ErrInvalidProposal},
		{"zero quantity", "alice", Proposal{ToUserID: "bob", OfferedCards: model.CardSet{"A": 0}}, errs.ErrInvalidProposal},
		{"unknown card", "alice", Proposal{ToUserID: "bob", OfferedCoins: 1, RequestedCards: model.CardSet{"Z": 1}}, errs.ErrInvalidProposal},
		{"teacher counterparty", "alice", Proposal{ToUserID: "teach", OfferedCoins: 1}, errs.ErrInvalidProposal},
		{"missing counterparty", "alice", Proposal{ToUserID: "nobody", OfferedCoins: 1}, errs.ErrNotFound},
		{"teacher proposer", "teach", Proposal{ToUserID: "bob", OfferedCoins: 1}, errs.ErrForbidden},
		{"too many cards", "alice", Proposal{ToUserID: "bob", OfferedCards: model.CardSet{"A": 3}}, errs.ErrInsufficientHoldings},
		{"too many coins", "alice", Proposal{ToUserID: "bob", OfferedCoins: 11}, errs.ErrInsufficientHoldings},
		{"unowned card", "alice", Proposal{ToUserID: "bob", OfferedCards: model.CardSet{"B": 1}}, errs.ErrInsufficientHoldings},
	}
	for _, tc := range cases {
		_, err := svc.Propose(ctx, as(tc.who), tc.in)
		require.ErrorIs(t, err, tc.want, tc.name)
	}
}

func TestAccept_ConservesHoldings(t *testing.T) {
	t.Parallel()
	st, svc := tradeFixture(t)
	ctx := context.Background()

	tr, err := svc.Propose(ctx, as("alice"), aliceForBob)
	require.NoError(t, err)
	require.Equal(t, model.TradePending, tr.Status)
	require.False(t, tr.CreatedAt.IsZero())

	done, err := svc.Respond(ctx, as("bob"), tr.ID, model.DecisionAccept)
	require.NoError(t, err)
	require.Equal(t, model.TradeAccepted, done.Status)
	require.NotNil(t, done.SettledAt)

	require.Equal(t, int64(0), qty(t, st, "alice", "A"))
	require.Equal(t, int64(5), qty(t, st, "alice", "B"))
	require.Equal(t, int64(2), qty(t, st, "bob", "A"))
	require.Equal(t, int64(0), qty(t, st, "bob", "B"))

	alice, bob := user(t, st, "alice"), user(t, st, "bob")
	require.Equal(t, int64(0), alice.Coins)
	require.Equal(t, int64(13), bob.Coins)
	require.Equal(t, int64(5), alice.CollectionSize)
	require.Equal(t, int64(2), bob.CollectionSize)
	require.Equal(t, int64(13), alice.Coins+bob.Coins)
}

func TestRespond_TerminalIsIdempotent(t *testing.T) {
	t.Parallel()
	st, svc := tradeFixture(t)
	ctx := context.Background()

	tr, err := svc.Propose(ctx, as("alice"), Proposal{ToUserID: "bob", OfferedCoins: 4})
	require.NoError(t, err)
	_, err = svc.Respond(ctx, as("bob"), tr.ID, model.DecisionAccept)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.Respond(ctx, as("bob"), tr.ID, model.DecisionAccept)
		require.ErrorIs(t, err, errs.ErrAlreadySettled)
		_, err = svc.Respond(ctx, as("bob"), tr.ID, model.DecisionReject)
		require.ErrorIs(t, err, errs.ErrAlreadySettled)
	}
	_, err = svc.Cancel(ctx, as("alice"), tr.ID)
	require.ErrorIs(t, err, errs.ErrAlreadySettled)

	require.Equal(t, int64(6), user(t, st, "alice").Coins)
	require.Equal(t, int64(7), user(t, st, "bob").Coins)
}

func TestRespond_Authorization(t *testing.T) {
	t.Parallel()
	_, svc := tradeFixture(t)
	ctx := context.Background()

	tr, err := svc.Propose(ctx, as("alice"), aliceForBob)
	require.NoError(t, err)

	_, err = svc.Respond(ctx, as("alice"), tr.ID, model.DecisionAccept)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = svc.Respond(ctx, as("carol"), tr.ID, model.DecisionReject)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = svc.Cancel(ctx, as("bob"), tr.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = svc.Respond(ctx, as("bob"), tr.ID, "maybe")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = svc.Respond(ctx, as("bob"), "missing", model.DecisionAccept)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReject_ThenCancelIsSettled(t *testing.T) {
	t.Parallel()
	st, svc := tradeFixture(t)
	ctx := context.Background()

	tr, err := svc.Propose(ctx, as("alice"), aliceForBob)
	require.NoError(t, err)
	rej, err := svc.Respond(ctx, as("bob"), tr.ID, model.DecisionReject)
	require.NoError(t, err)
	require.Equal(t, model.TradeRejected, rej.Status)

	_, err = svc.Cancel(ctx, as("alice"), tr.ID)
	require.ErrorIs(t, err, errs.ErrAlreadySettled)
	require.Equal(t, int64(2), qty(t, st, "alice", "A"))
	require.Equal(t, int64(5), qty(t, st, "bob", "B"))
}

func TestCancel_ByAuthor(t *testing.T) {
	t.Parallel()
	_, svc := tradeFixture(t)
	ctx := context.Background()

	tr, err := svc.Propose(ctx, as("alice"), aliceForBob)
	require.NoError(t, err)
	c, err := svc.Cancel(ctx, as("alice"), tr.ID)
	require.NoError(t, err)
	require.Equal(t, model.TradeCancelled, c.Status)
	require.Empty(t, c.Reason)

	_, err = svc.Respond(ctx, as("bob"), tr.ID, model.DecisionAccept)
	require.ErrorIs(t, err, errs.ErrAlreadySettled)
}

func TestAccept_StaleProposalIsClosed(t *testing.T) {
	t.Parallel()
	st, svc := tradeFixture(t)
	ctx := context.Background()

	tr, err := svc.Propose(ctx, as("alice"), aliceForBob)
	require.NoError(t, err)

	// alice gives one A to carol before bob answers
	gift, err := svc.Propose(ctx, as("alice"), Proposal{ToUserID: "carol", OfferedCards: model.CardSet{"A": 1}})
	require.NoError(t, err)
	_, err = svc.Respond(ctx, as("carol"), gift.ID, model.DecisionAccept)
	require.NoError(t, err)

	_, err = svc.Respond(ctx, as("bob"), tr.ID, model.DecisionAccept)
	require.ErrorIs(t, err, errs.ErrStaleProposal)

	got, err := svc.Get(ctx, as("alice"), tr.ID)
	require.NoError(t, err)
	require.Equal(t, model.TradeCancelled, got.Status)
	require.Equal(t, StaleReason, got.Reason)

	require.Equal(t, int64(1), qty(t, st, "alice", "A"))
	require.Equal(t, int64(5), qty(t, st, "bob", "B"))
	require.Equal(t, int64(10), user(t, st, "alice").Coins)

	_, err = svc.Respond(ctx, as("bob"), tr.ID, model.DecisionAccept)
	require.ErrorIs(t, err, errs.ErrAlreadySettled)
}

func TestAccept_CounterpartyShort(t *testing.T) {
	t.Parallel()
	_, svc := tradeFixture(t)
	ctx := context.Background()

	tr, err := svc.Propose(ctx, as("alice"), Proposal{ToUserID: "bob", OfferedCoins: 1, RequestedCoins: 50})
	require.NoError(t, err)
	_, err = svc.Respond(ctx, as("bob"), tr.ID, model.DecisionAccept)
	require.ErrorIs(t, err, errs.ErrStaleProposal)
}

func TestAcceptVersusCancel_ExactlyOneWins(t *testing.T) {
	t.Parallel()
	for i := 0; i < 20; i++ {
		st, svc := tradeFixture(t)
		svc.policy = retryHard
		ctx := context.Background()

		tr, err := svc.Propose(ctx, as("alice"), aliceForBob)
		require.NoError(t, err)

		var (
			wg               sync.WaitGroup
			acceptErr, cxErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = svc.Respond(ctx, as("bob"), tr.ID, model.DecisionAccept)
		}()
		go func() {
			defer wg.Done()
			_, cxErr = svc.Cancel(ctx, as("alice"), tr.ID)
		}()
		wg.Wait()

		require.True(t, (acceptErr == nil) != (cxErr == nil), "accept=%v cancel=%v", acceptErr, cxErr)
		if acceptErr == nil {
			require.ErrorIs(t, cxErr, errs.ErrAlreadySettled)
			require.Equal(t, int64(2), qty(t, st, "bob", "A"))
		} else {
			require.ErrorIs(t, acceptErr, errs.ErrAlreadySettled)
			require.Equal(t, int64(2), qty(t, st, "alice", "A"))
		}
	}
}

func TestConcurrentAccepts_NeverOverdraw(t *testing.T) {
	t.Parallel()
	st, svc := tradeFixture(t)
	svc.policy = retryHard
	ctx := context.Background()

	// alice offers her 10 coins to bob five times over; only one can settle
	var ids []string
	for i := 0; i < 5; i++ {
		tr, err := svc.Propose(ctx, as("alice"), Proposal{ToUserID: "bob", OfferedCoins: 10})
		require.NoError(t, err)
		ids = append(ids, tr.ID)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Respond(ctx, as("bob"), id, model.DecisionAccept)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			if !errors.Is(err, errs.ErrStaleProposal) {
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, int64(0), user(t, st, "alice").Coins)
	require.Equal(t, int64(13), user(t, st, "bob").Coins)
}

func TestGetAndList(t *testing.T) {
	t.Parallel()
	_, svc := tradeFixture(t)
	ctx := context.Background()

	tr, err := svc.Propose(ctx, as("alice"), aliceForBob)
	require.NoError(t, err)

	_, err = svc.Get(ctx, as("carol"), tr.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)
	got, err := svc.Get(ctx, as("root"), tr.ID)
	require.NoError(t, err)
	require.Equal(t, model.CardSet{"A": 2}, got.OfferedCards)

	in, err := svc.List(ctx, as("bob"), model.TradeFilter{Incoming: true, Status: model.TradePending})
	require.NoError(t, err)
	require.Len(t, in, 1)
	out, err := svc.List(ctx, as("bob"), model.TradeFilter{})
	require.NoError(t, err)
	require.Empty(t, out)
}
