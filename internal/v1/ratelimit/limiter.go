// Package ratelimit enforces per-IP request limits on the REST surface
// and on websocket upgrades. Counters live in a local memory store; the
// service keeps all room state in-process, so a distributed store would
// buy nothing.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/tossemideia/synctube/internal/v1/config"
	"github.com/tossemideia/synctube/internal/v1/logging"
	"github.com/tossemideia/synctube/internal/v1/metrics"
)

// RateLimiter holds the rate limiter instances
type RateLimiter struct {
	api   *limiter.Limiter
	rooms *limiter.Limiter
	wsIP  *limiter.Limiter
}

// NewRateLimiter creates a new RateLimiter instance
func NewRateLimiter(cfg *config.Config) (*RateLimiter, error) {
	apiRate, err := limiter.NewRateFromFormatted(cfg.RateLimitApi)
	if err != nil {
		return nil, fmt.Errorf("invalid API rate: %w", err)
	}

	roomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid rooms rate: %w", err)
	}

	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIp)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	store := memory.NewStore()
	return &RateLimiter{
		api:   limiter.New(store, apiRate),
		rooms: limiter.New(store, roomsRate),
		wsIP:  limiter.New(store, wsIPRate),
	}, nil
}

// APIMiddleware enforces the general per-IP limit on the REST routes.
func (rl *RateLimiter) APIMiddleware() gin.HandlerFunc {
	return mgin.NewMiddleware(rl.api)
}

// RoomCreateMiddleware enforces the tighter room-creation limit. Custom
// rather than mgin so rejections feed the metrics counter.
func (rl *RateLimiter) RoomCreateMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		lctx, err := rl.rooms.Get(ctx, c.ClientIP())
		if err != nil {
			// Fail open: availability beats strictness for a memory store.
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues("room_create").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}
		c.Next()
	}
}

// CheckWebSocket checks if a websocket upgrade should be allowed.
// Returns true if allowed, false if the limit was exceeded (and the
// response was already written).
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	lctx, err := rl.wsIP.Get(ctx, c.ClientIP())
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true // Fail open
	}

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(lctx.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}
	return true
}
