package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/ifcoins/internal/api"
	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/catalog"
	"github.com/and161185/ifcoins/internal/draw"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/limiter"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
	"github.com/and161185/ifcoins/internal/repository/memory"
	"github.com/and161185/ifcoins/internal/service"
)

const bufSize = 1 << 20

type env struct {
	st     *memory.Store
	tokens *auth.Tokens
	cc     *grpc.ClientConn
}

func (e *env) client(t *testing.T, userID string) *Client {
	t.Helper()
	if userID == "" {
		return NewClient(e.cc, "")
	}
	tok, _, err := e.tokens.Issue(auth.Principal{ID: userID})
	require.NoError(t, err)
	return NewClient(e.cc, tok)
}

func startBufGRPC(t *testing.T, lim limiter.Limiter) *env {
	t.Helper()
	log := zaptest.NewLogger(t)

	st := memory.New()
	require.NoError(t, st.RunTx(context.Background(), func(_ context.Context, tx repository.Tx) error {
		tx.PutUser(model.User{ID: "root", Name: "root", Role: model.RoleAdmin})
		tx.PutUser(model.User{ID: "teach", Name: "teach", Role: model.RoleTeacher})
		tx.PutUser(model.User{ID: "alice", Name: "alice", Role: model.RoleStudent, Registration: "1", Class: "7A", Coins: 100})
		tx.PutUser(model.User{ID: "bob", Name: "bob", Role: model.RoleStudent, Registration: "2", Class: "7A", Coins: 5})
		tx.PutCard(model.Card{ID: "owl", Name: "Owl", Rarity: model.RarityCommon, Available: true})
		tx.PutPack(model.Pack{ID: "starter", Name: "Starter", Price: 30, Available: true})
		return nil
	}))

	cat := catalog.New(st, log)
	engine, err := draw.New(draw.NewLockedSource([32]byte{1}), nil)
	require.NoError(t, err)
	policy := repository.DefaultRetryPolicy
	srv := New(service.Services{
		Purchases: service.NewPurchaseService(st, cat, engine, policy, 0, log),
		Trades:    service.NewTradeService(st, policy, log),
		Rewards:   service.NewRewardService(st, policy, log),
		Admin:     service.NewAdminService(st, cat, policy, log),
		Queries:   service.NewQueryService(st, cat),
	})
	tokens := auth.NewTokens([]byte("test-secret"), time.Hour)

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		AuthUnary(tokens),
		RateLimitUnary(lim, log),
	))
	RegisterEconomyServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return &env{st: st, tokens: tokens, cc: cc}
}

func TestServer_E2E_EconomyFlow(t *testing.T) {
	t.Parallel()
	e := startBufGRPC(t, nil)
	ctx := context.Background()
	alice, bob, teach := e.client(t, "alice"), e.client(t, "bob"), e.client(t, "teach")

	cat, err := e.client(t, "").Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, cat.Cards, 1)

	_, err = e.client(t, "").Me(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	buy, err := alice.PurchasePack(ctx, "starter")
	require.NoError(t, err)
	require.Len(t, buy.Cards, draw.DefaultPackSize)
	require.Equal(t, []string{"owl"}, buy.NewlyOwned)
	require.Equal(t, int64(70), buy.Balance)

	_, err = bob.PurchasePack(ctx, "starter")
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	tr, err := alice.ProposeTrade(ctx, &api.ProposeTradeRequest{
		ToUserID: "bob", OfferedCards: map[string]int64{"owl": 2}, RequestedCoins: 5,
	})
	require.NoError(t, err)
	require.Equal(t, "pending", tr.Status)

	incoming, err := bob.ListTrades(ctx, &api.ListTradesRequest{Incoming: true, Status: "pending"})
	require.NoError(t, err)
	require.Len(t, incoming.Trades, 1)

	done, err := bob.RespondToTrade(ctx, tr.ID, "accept")
	require.NoError(t, err)
	require.Equal(t, "accepted", done.Status)
	require.NotNil(t, done.SettledAt)

	_, err = bob.RespondToTrade(ctx, tr.ID, "reject")
	require.ErrorIs(t, err, errs.ErrAlreadySettled)

	col, err := bob.Collection(ctx)
	require.NoError(t, err)
	require.Len(t, col.Cards, 1)
	require.Equal(t, int64(2), col.Cards[0].Quantity)

	rw, err := teach.IssueReward(ctx, &api.IssueRewardRequest{Identifier: "7a", Coins: 3, Reason: "quiz"})
	require.NoError(t, err)
	require.Equal(t, 2, rw.StudentsRewarded)

	_, err = alice.IssueReward(ctx, &api.IssueRewardRequest{Identifier: "7A", Coins: 3, Reason: "self"})
	require.ErrorIs(t, err, errs.ErrForbidden)

	hist, err := bob.ListRewards(ctx, "")
	require.NoError(t, err)
	require.Len(t, hist.Rewards, 1)

	me, err := alice.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(70+5+3), me.Coins)
	require.Equal(t, int64(1), me.CollectionSize)

	board, err := e.client(t, "").Leaderboard(ctx, "collection", 0)
	require.NoError(t, err)
	require.Equal(t, "collection", board.Kind)
	require.Equal(t, "bob", board.Entries[0].UserID)
}

func TestServer_E2E_Admin(t *testing.T) {
	t.Parallel()
	e := startBufGRPC(t, nil)
	ctx := context.Background()
	root, teach := e.client(t, "root"), e.client(t, "teach")

	st, err := teach.RegisterStudent(ctx, &api.RegisterStudentRequest{Name: "Cy", Registration: "3", Class: "7b"})
	require.NoError(t, err)
	require.Equal(t, "7B", st.Class)

	_, err = teach.RegisterStudent(ctx, &api.RegisterStudentRequest{Name: "Cy2", Registration: "3", Class: "7B"})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = teach.CreateStaff(ctx, &api.CreateStaffRequest{Name: "X", Role: "admin"})
	require.ErrorIs(t, err, errs.ErrForbidden)

	start := time.Now().Add(-time.Hour).UTC()
	ev, err := root.CreateEvent(ctx, &api.Event{Name: "Fair", StartsAt: start, EndsAt: start.Add(3 * time.Hour)})
	require.NoError(t, err)

	stock := int64(1)
	c, err := root.UpsertCard(ctx, &api.Card{Name: "Phoenix", Rarity: "mythic", Available: true, CopiesAvailable: &stock, EventID: ev.ID})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	_, err = root.UpsertCard(ctx, &api.Card{Name: "Bad", Rarity: "ultra"})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	pk, err := root.CreatePack(ctx, &api.Pack{Name: "Deluxe", Price: 50, Available: true})
	require.NoError(t, err)

	packs, err := teach.ListPacks(ctx)
	require.NoError(t, err)
	require.Len(t, packs.Packs, 2)
	require.Contains(t, []string{packs.Packs[0].ID, packs.Packs[1].ID}, pk.ID)

	events, err := teach.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events.Events, 1)

	cat, err := teach.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, cat.Cards, 2)
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, time.Minute, nil
}

func TestServer_E2E_RateLimited(t *testing.T) {
	t.Parallel()
	e := startBufGRPC(t, denyAll{})
	ctx := context.Background()

	_, err := e.client(t, "alice").PurchasePack(ctx, "starter")
	require.ErrorIs(t, err, errs.ErrRateLimited)
	require.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = e.client(t, "alice").Me(ctx)
	require.NoError(t, err)
}
