package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/limiter"
)

// accessLog logs route metadata only, never bodies.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		}
		if p, ok := auth.FromContext(c.Request.Context()); ok {
			fields = append(fields, zap.String("user", p.ID))
		}
		if c.Writer.Status() >= 500 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
			log.Error("http", fields...)
			return
		}
		log.Info("http", fields...)
	}
}

// authenticate verifies the bearer token and stores the principal in the request context. When
// required is false an absent header passes through anonymously; a bad token never does.
func authenticate(tokens *auth.Tokens, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && !required {
			c.Next()
			return
		}
		tok, ok := auth.BearerToken(header)
		if !ok {
			fail(c, errs.ErrUnauthorized)
			return
		}
		p, err := tokens.Verify(tok)
		if err != nil {
			fail(c, err)
			return
		}
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// rateLimit spends one unit of the caller's budget. Limiter failures let the request through.
func rateLimit(lim limiter.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lim == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		if p, ok := auth.FromContext(c.Request.Context()); ok {
			key = p.ID
		}
		allowed, wait, err := lim.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())))
			fail(c, errs.ErrRateLimited)
			return
		}
		c.Next()
	}
}
