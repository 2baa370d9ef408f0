// Package idempotency remembers the order created for an Idempotency-Key so a
// retried POST /orders returns the same order instead of failing on the now
// empty cart.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"os"
	"strconv"
	"time"
)

const Header = "Idempotency-Key"

const (
	pending   = "pending"
	maxKeyLen = 255
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var (
	ErrInFlight   = errors.New("a request with this idempotency key is still in progress")
	ErrInvalidKey = errors.New("idempotency key must be 1 to 255 characters")
)

// Store keeps keys in Redis. A nil Store, or one without a client, never
// remembers anything and lets every request through.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func redisKey(userID int64, key string) string {
	return fmt.Sprintf("idempotency:%d:%s", userID, key)
}

// Begin claims key for userID. It returns the order id stored by an earlier
// completed request with done set, or ErrInFlight while that request runs.
// When Redis fails the claim is skipped and the request proceeds.
func (s *Store) Begin(ctx context.Context, userID int64, key string) (orderID int64, done bool, err error) {
	if len(key) == 0 || len(key) > maxKeyLen {
		return 0, false, ErrInvalidKey
	}
	if s == nil || s.rdb == nil {
		return 0, false, nil
	}

	k := redisKey(userID, key)
	claimed, err := s.rdb.SetNX(ctx, k, pending, s.ttl).Result()
	if err != nil {
		logger.Error().Err(err).Msgf("Error claiming idempotency key %s", key)
		return 0, false, nil
	}
	if claimed {
		return 0, false, nil
	}

	val, err := s.rdb.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET
		return s.Begin(ctx, userID, key)
	case err != nil:
		logger.Error().Err(err).Msgf("Error reading idempotency key %s", key)
		return 0, false, nil
	case val == pending:
		return 0, false, ErrInFlight
	}

	orderID, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency record %q: %w", val, err)
	}
	return orderID, true, nil
}

// Complete records the order created under key.
func (s *Store) Complete(ctx context.Context, userID int64, key string, orderID int64) {
	if s == nil || s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, redisKey(userID, key), orderID, s.ttl).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error completing idempotency key %s", key)
	}
}

// Abort releases key after a failed request so the client may retry with it.
func (s *Store) Abort(ctx context.Context, userID int64, key string) {
	if s == nil || s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, redisKey(userID, key)).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error releasing idempotency key %s", key)
	}
}
