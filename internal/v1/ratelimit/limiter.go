// Package ratelimit implements per-IP connection rate limiting for the
// WebSocket endpoint using an in-memory sliding window store.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/v1/logging"
	"github.com/parleyhq/parley/internal/v1/metrics"
)

// RateLimiter guards the WebSocket upgrade endpoint.
type RateLimiter struct {
	wsIP  *limiter.Limiter
	store limiter.Store
}

// New builds a RateLimiter from a formatted rate such as "100-M"
// (100 per minute). See limiter.NewRateFromFormatted for the syntax.
func New(wsIPRate string) (*RateLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(wsIPRate)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	store := memory.NewStore()
	return &RateLimiter{
		wsIP:  limiter.New(store, rate),
		store: store,
	}, nil
}

// CheckWebSocket checks whether a connection attempt from the client's IP
// is allowed. When the limit is reached it writes a 429 response and
// returns false. Store failures fail open.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true // fail open
	}

	c.Header("X-RateLimit-Limit", strconv.FormatInt(ipContext.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ipContext.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(ipContext.Reset, 10))

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ip").Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}
