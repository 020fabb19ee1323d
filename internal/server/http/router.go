// Package httpserver is the JSON/HTTP gateway over the economy services.
package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/limiter"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/service"
)

// Options configures the router.
type Options struct {
	Tokens  *auth.Tokens
	Limiter limiter.Limiter // nil disables rate limiting
	Origins []string        // CORS allow-list; empty allows any origin
	Log     *zap.Logger
}

// NewRouter builds the gin engine with every /api/v1 route.
func NewRouter(svc service.Services, opt Options) *gin.Engine {
	log := opt.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{svc: svc}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(log))

	cfg := cors.DefaultConfig()
	if len(opt.Origins) > 0 {
		cfg.AllowOrigins = opt.Origins
		cfg.AllowCredentials = true
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(cfg))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	limit := rateLimit(opt.Limiter, log)
	v1 := r.Group("/api/v1")
	{
		public := v1.Group("", authenticate(opt.Tokens, false))
		public.GET("/leaderboard", h.leaderboard)
		public.GET("/catalog", h.catalog)
		public.GET("/packs", h.packs)
		public.GET("/events", h.events)

		user := v1.Group("", authenticate(opt.Tokens, true))
		user.GET("/me", h.me)
		user.GET("/me/collection", h.collection)
		user.POST("/packs/:id/purchase", limit, h.purchase)

		user.POST("/trades", limit, h.proposeTrade)
		user.GET("/trades", h.listTrades)
		user.GET("/trades/:id", h.getTrade)
		user.POST("/trades/:id/accept", limit, h.respond(model.DecisionAccept))
		user.POST("/trades/:id/reject", limit, h.respond(model.DecisionReject))
		user.POST("/trades/:id/cancel", limit, h.cancelTrade)

		user.POST("/rewards", limit, h.issueReward)
		user.GET("/rewards/:studentId", h.listRewards)

		admin := user.Group("/admin", limit)
		admin.POST("/students", h.registerStudent)
		admin.POST("/staff", h.createStaff)
		admin.POST("/cards", h.upsertCard)
		admin.POST("/packs", h.createPack)
		admin.POST("/events", h.createEvent)
	}
	return r
}
