package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/ifcoins/internal/api"
	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/catalog"
	"github.com/and161185/ifcoins/internal/draw"
	"github.com/and161185/ifcoins/internal/limiter"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
	"github.com/and161185/ifcoins/internal/repository/memory"
	"github.com/and161185/ifcoins/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

type gateway struct {
	r      *gin.Engine
	tokens *auth.Tokens
}

func newGateway(t *testing.T, lim limiter.Limiter) *gateway {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := memory.New()
	require.NoError(t, st.RunTx(context.Background(), func(_ context.Context, tx repository.Tx) error {
		tx.PutUser(model.User{ID: "root", Name: "root", Role: model.RoleAdmin})
		tx.PutUser(model.User{ID: "teach", Name: "teach", Role: model.RoleTeacher})
		tx.PutUser(model.User{ID: "alice", Name: "alice", Role: model.RoleStudent, Registration: "1", Class: "7A", Coins: 40})
		tx.PutUser(model.User{ID: "bob", Name: "bob", Role: model.RoleStudent, Registration: "2", Class: "7A"})
		tx.PutCard(model.Card{ID: "owl", Name: "Owl", Rarity: model.RarityCommon, Available: true})
		tx.PutPack(model.Pack{ID: "starter", Name: "Starter", Price: 30, Available: true})
		return nil
	}))
	cat := catalog.New(st, log)
	engine, err := draw.New(draw.NewLockedSource([32]byte{2}), nil)
	require.NoError(t, err)
	policy := repository.DefaultRetryPolicy
	tokens := auth.NewTokens([]byte("http-secret"), time.Hour)
	r := NewRouter(service.Services{
		Purchases: service.NewPurchaseService(st, cat, engine, policy, 0, log),
		Trades:    service.NewTradeService(st, policy, log),
		Rewards:   service.NewRewardService(st, policy, log),
		Admin:     service.NewAdminService(st, cat, policy, log),
		Queries:   service.NewQueryService(st, cat),
	}, Options{Tokens: tokens, Limiter: lim, Log: log})
	return &gateway{r: r, tokens: tokens}
}

func (g *gateway) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		tok, _, err := g.tokens.Issue(auth.Principal{ID: userID})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	g.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	require.Equal(t, code, decode[api.ErrorBody](t, w).Error)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	g := newGateway(t, nil)
	w := g.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	g := newGateway(t, nil)

	requireError(t, g.do(t, http.MethodGet, "/api/v1/me", "", nil), http.StatusUnauthorized, "unauthorized")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	g.r.ServeHTTP(w, req)
	requireError(t, w, http.StatusUnauthorized, "unauthorized")

	w = g.do(t, http.MethodGet, "/api/v1/catalog", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[api.CatalogResponse](t, w).Cards, 1)
}

func TestPurchaseAndTradeFlow(t *testing.T) {
	t.Parallel()
	g := newGateway(t, nil)

	w := g.do(t, http.MethodPost, "/api/v1/packs/starter/purchase", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	buy := decode[api.PurchasePackResponse](t, w)
	require.Len(t, buy.Cards, 3)
	require.Equal(t, int64(10), buy.Balance)

	requireError(t, g.do(t, http.MethodPost, "/api/v1/packs/starter/purchase", "alice", nil),
		http.StatusUnprocessableEntity, "insufficient_funds")
	requireError(t, g.do(t, http.MethodPost, "/api/v1/packs/nope/purchase", "alice", nil),
		http.StatusNotFound, "not_found")

	w = g.do(t, http.MethodPost, "/api/v1/trades", "alice", api.ProposeTradeRequest{
		ToUserID: "bob", OfferedCards: map[string]int64{"owl": 1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tr := decode[api.Trade](t, w)

	requireError(t, g.do(t, http.MethodPost, "/api/v1/trades", "alice", api.ProposeTradeRequest{
		ToUserID: "alice", OfferedCoins: 1,
	}), http.StatusBadRequest, "self_trade")

	requireError(t, g.do(t, http.MethodPost, "/api/v1/trades/"+tr.ID+"/accept", "alice", nil),
		http.StatusForbidden, "forbidden")

	w = g.do(t, http.MethodGet, "/api/v1/trades?direction=incoming&status=pending", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[api.ListTradesResponse](t, w).Trades, 1)

	w = g.do(t, http.MethodPost, "/api/v1/trades/"+tr.ID+"/accept", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "accepted", decode[api.Trade](t, w).Status)

	requireError(t, g.do(t, http.MethodPost, "/api/v1/trades/"+tr.ID+"/cancel", "alice", nil),
		http.StatusConflict, "already_settled")

	w = g.do(t, http.MethodGet, "/api/v1/trades/"+tr.ID, "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = g.do(t, http.MethodGet, "/api/v1/me/collection", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(1), decode[api.CollectionResponse](t, w).Cards[0].Quantity)

	w = g.do(t, http.MethodGet, "/api/v1/leaderboard?kind=collection&limit=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[api.LeaderboardResponse](t, w)
	require.Len(t, board.Entries, 1)
	require.Equal(t, "alice", board.Entries[0].UserID)

	requireError(t, g.do(t, http.MethodGet, "/api/v1/leaderboard?limit=ten", "", nil), http.StatusBadRequest, "invalid_argument")
}

func TestRewardsAndAdmin(t *testing.T) {
	t.Parallel()
	g := newGateway(t, nil)

	w := g.do(t, http.MethodPost, "/api/v1/rewards", "teach", api.IssueRewardRequest{Identifier: "7A", Coins: 2, Reason: "homework"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, 2, decode[api.IssueRewardResponse](t, w).StudentsRewarded)

	requireError(t, g.do(t, http.MethodPost, "/api/v1/rewards", "teach", api.IssueRewardRequest{Identifier: "9Z", Coins: 2, Reason: "x"}),
		http.StatusNotFound, "no_matching_students")
	requireError(t, g.do(t, http.MethodPost, "/api/v1/rewards", "teach", api.IssueRewardRequest{Identifier: "7A", Coins: 11, Reason: "x"}),
		http.StatusBadRequest, "invalid_argument")

	w = g.do(t, http.MethodGet, "/api/v1/rewards/bob", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[api.ListRewardsResponse](t, w).Rewards, 1)
	requireError(t, g.do(t, http.MethodGet, "/api/v1/rewards/bob", "alice", nil), http.StatusForbidden, "forbidden")

	w = g.do(t, http.MethodPost, "/api/v1/admin/students", "teach", api.RegisterStudentRequest{Name: "Cy", Registration: "3", Class: "8c"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "8C", decode[api.User](t, w).Class)

	requireError(t, g.do(t, http.MethodPost, "/api/v1/admin/cards", "teach", api.Card{Name: "X", Rarity: "rare"}),
		http.StatusForbidden, "forbidden")

	w = g.do(t, http.MethodPost, "/api/v1/admin/cards", "root", api.Card{Name: "Fox", Rarity: "rare", Available: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	start := time.Now().Add(time.Hour).UTC()
	w = g.do(t, http.MethodPost, "/api/v1/admin/events", "root", api.Event{Name: "Later", StartsAt: start, EndsAt: start.Add(time.Hour)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = g.do(t, http.MethodGet, "/api/v1/events", "", nil)
	require.Empty(t, decode[api.EventsResponse](t, w).Events)

	w = g.do(t, http.MethodPost, "/api/v1/admin/packs", "root", api.Pack{Name: "Gold", Price: 90})
	require.Equal(t, http.StatusCreated, w.Code)
	w = g.do(t, http.MethodGet, "/api/v1/packs", "", nil)
	require.Len(t, decode[api.PacksResponse](t, w).Packs, 1)

	requireError(t, g.do(t, http.MethodPost, "/api/v1/admin/staff", "root", api.CreateStaffRequest{Name: "S", Role: "wizard"}),
		http.StatusBadRequest, "invalid_argument")
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, time.Duration, error) { return false, 30 * time.Second, nil }

func TestRateLimit(t *testing.T) {
	t.Parallel()
	g := newGateway(t, denyAll{})

	w := g.do(t, http.MethodPost, "/api/v1/packs/starter/purchase", "alice", nil)
	requireError(t, w, http.StatusTooManyRequests, "rate_limited")
	require.Equal(t, "30", w.Header().Get("Retry-After"))

	w = g.do(t, http.MethodGet, "/api/v1/me", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStatusOf_Unknown(t *testing.T) {
	t.Parallel()
	require.Equal(t, http.StatusInternalServerError, statusOf(context.DeadlineExceeded))
}
