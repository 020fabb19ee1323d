package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/and161185/ifcoins/internal/api"
	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/convert"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/service"
)

type handlers struct {
	svc service.Services
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.FromContext(c.Request.Context())
	return p
}

func (h *handlers) purchase(c *gin.Context) {
	res, err := h.svc.Purchases.PurchasePack(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIPurchase(res))
}

// --- trades ---

func (h *handlers) proposeTrade(c *gin.Context) {
	var req api.ProposeTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tr, err := h.svc.Trades.Propose(c.Request.Context(), principal(c), convert.FromAPIProposal(&req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPITrade(tr))
}

func (h *handlers) respond(decision model.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		tr, err := h.svc.Trades.Respond(c.Request.Context(), principal(c), c.Param("id"), decision)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, convert.ToAPITrade(tr))
	}
}

func (h *handlers) cancelTrade(c *gin.Context) {
	tr, err := h.svc.Trades.Cancel(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPITrade(tr))
}

func (h *handlers) getTrade(c *gin.Context) {
	tr, err := h.svc.Trades.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPITrade(tr))
}

// listTrades reads ?direction=incoming|outgoing&status=...
func (h *handlers) listTrades(c *gin.Context) {
	f, err := convert.FromAPITradeFilter(&api.ListTradesRequest{
		Incoming: c.Query("direction") == "incoming",
		Status:   c.Query("status"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ts, err := h.svc.Trades.List(c.Request.Context(), principal(c), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListTradesResponse{Trades: convert.ToAPITrades(ts)})
}

// --- rewards ---

func (h *handlers) issueReward(c *gin.Context) {
	var req api.IssueRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.Rewards.IssueReward(c.Request.Context(), principal(c), req.Identifier, req.Coins, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPIRewardResult(res))
}

func (h *handlers) listRewards(c *gin.Context) {
	rs, err := h.svc.Rewards.Rewards(c.Request.Context(), principal(c), c.Param("studentId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListRewardsResponse{Rewards: convert.ToAPIRewards(rs)})
}

// --- queries ---

func (h *handlers) me(c *gin.Context) {
	u, err := h.svc.Queries.Me(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIUser(u))
}

func (h *handlers) collection(c *gin.Context) {
	cs, err := h.svc.Queries.Collection(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.CollectionResponse{Cards: convert.ToAPIOwned(cs)})
}

// leaderboard reads ?kind=coins|collection&limit=N.
func (h *handlers) leaderboard(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			badRequest(c, err)
			return
		}
		limit = n
	}
	kind := model.LeaderboardKind(c.Query("kind"))
	es, err := h.svc.Queries.Leaderboard(c.Request.Context(), kind, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPILeaderboard(kind, es))
}

func (h *handlers) catalog(c *gin.Context) {
	cs, err := h.svc.Queries.Catalog(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.CatalogResponse{Cards: convert.ToAPICards(cs)})
}

func (h *handlers) packs(c *gin.Context) {
	ps, err := h.svc.Queries.Packs(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.PacksResponse{Packs: convert.ToAPIPacks(ps)})
}

func (h *handlers) events(c *gin.Context) {
	es, err := h.svc.Queries.ActiveEvents(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.EventsResponse{Events: convert.ToAPIEvents(es)})
}

// --- admin ---

func (h *handlers) registerStudent(c *gin.Context) {
	var req api.RegisterStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.svc.Admin.RegisterStudent(c.Request.Context(), principal(c), convert.FromAPIStudent(&req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPIUser(u))
}

func (h *handlers) createStaff(c *gin.Context) {
	var req api.CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in, err := convert.FromAPIStaff(&req)
	if err != nil {
		fail(c, err)
		return
	}
	u, err := h.svc.Admin.CreateStaff(c.Request.Context(), principal(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPIUser(u))
}

func (h *handlers) upsertCard(c *gin.Context) {
	var req api.Card
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	card, err := convert.FromAPICard(req)
	if err != nil {
		fail(c, err)
		return
	}
	card, err = h.svc.Admin.UpsertCard(c.Request.Context(), principal(c), card)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPICard(card))
}

func (h *handlers) createPack(c *gin.Context) {
	var req api.Pack
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pk, err := h.svc.Admin.CreatePack(c.Request.Context(), principal(c), convert.FromAPIPack(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPIPack(pk))
}

func (h *handlers) createEvent(c *gin.Context) {
	var req api.Event
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.svc.Admin.CreateEvent(c.Request.Context(), principal(c), convert.FromAPIEvent(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPIEvent(e))
}
