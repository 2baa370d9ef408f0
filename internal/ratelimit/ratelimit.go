// Package ratelimit provides a Redis backed sliding window store for echo's
// rate limiter middleware.
package ratelimit

import (
	"context"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"time"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const keyPrefix = "rate_limit:"

// slidingWindow drops hits older than the window, then admits the request if
// fewer than limit hits remain. Scores are milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisStore admits at most Limit requests per identifier in any Window.
// It implements middleware.RateLimiterStore.
type RedisStore struct {
	rdb     *redis.Client
	limit   int
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

var _ middleware.RateLimiterStore = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, limit int, window time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, limit: limit, window: window, timeout: time.Second, now: time.Now}
}

// Allow records a hit for identifier. When Redis cannot be reached the
// request is let through so an outage does not take the API down with it.
func (s *RedisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	allowed, err := slidingWindow.Run(ctx, s.rdb, []string{keyPrefix + identifier},
		s.now().UnixMilli(), s.window.Milliseconds(), s.limit, uuid.NewString()).Int()
	if err != nil {
		logger.Error().Err(err).Msgf("Error checking rate limit for %s", identifier)
		return true, nil
	}
	return allowed == 1, nil
}

// NewConfig builds the limiter middleware config keyed by client address.
func NewConfig(store middleware.RateLimiterStore) middleware.RateLimiterConfig {
	return middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"detail": "Could not identify the client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"detail": "Rate limit exceeded"})
		},
	}
}
