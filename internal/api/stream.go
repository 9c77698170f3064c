package api

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tphakala/withu/internal/logger"
)

const (
	soundLevelStreamInterval    = 50 * time.Millisecond
	soundLevelHeartbeatInterval = 10 * time.Second
	soundLevelMaxDuration       = 30 * time.Minute
	soundLevelSubscriberBuffer  = 4
)

// SoundLevelData is one sound level SSE payload.
type SoundLevelData struct {
	Level     float64   `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Controller) initSoundLevelRoutes() {
	// Connection attempts per client IP, not update frequency.
	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(1),
				Burst:     5,
				ExpiresIn: 5 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded for sound level stream",
			})
		},
	})

	c.Group.GET("/streams/sound-level", c.StreamSoundLevel, limiter)
}

// StreamSoundLevel handles GET /api/v1/streams/sound-level. Levels are
// pushed as they arrive, at most once per stream interval.
func (c *Controller) StreamSoundLevel(ctx echo.Context) error {
	levels, cancel := c.deps.Levels.SubscribeLevels(soundLevelSubscriberBuffer)
	defer cancel()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(res, "retry: 3000\n\n"); err != nil {
		return nil
	}
	res.Flush()

	clientIP := ctx.RealIP()
	c.log.Debug("sound level stream connected", logger.String("client_ip", clientIP))
	defer c.log.Debug("sound level stream closed", logger.String("client_ip", clientIP))

	throttle := rate.NewLimiter(rate.Every(c.streamInterval), 1)
	heartbeat := time.NewTicker(c.heartbeatInterval)
	defer heartbeat.Stop()
	deadline := time.NewTimer(c.maxStreamDuration)
	defer deadline.Stop()

	reqCtx := ctx.Request().Context()
	for {
		select {
		case <-reqCtx.Done():
			return nil
		case <-deadline.C:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(res, ": heartbeat %d\n\n", time.Now().Unix()); err != nil {
				return nil
			}
			res.Flush()
		case level, ok := <-levels:
			if !ok {
				return nil
			}
			if !throttle.Allow() {
				continue
			}
			if err := writeSSE(res, "sound-level", SoundLevelData{
				Level:     math.Round(level*10) / 10,
				Timestamp: time.Now(),
			}); err != nil {
				return nil
			}
		}
	}
}
