package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/go-redis/redis/v8"
	"time"
)

// ProductCache is a read-through Redis cache of single products. A nil
// *ProductCache is valid and caches nothing. Redis failures are logged and
// treated as misses so the catalog keeps serving from the database.
type ProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProductCache(rdb *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func (c *ProductCache) Get(ctx context.Context, id int64) (*entity.Product, bool) {
	if c == nil {
		return nil, false
	}

	// Read from cache
	cached, err := c.rdb.Get(ctx, productKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Error().Err(err).Msgf("Error getting product %d from cache", id)
		}
		return nil, false
	}

	var product entity.Product
	if err := json.Unmarshal([]byte(cached), &product); err != nil {
		logger.Error().Err(err).Msgf("Error unmarshalling product %d", id)
		return nil, false
	}
	return &product, true
}

func (c *ProductCache) Set(ctx context.Context, product *entity.Product) {
	if c == nil {
		return
	}

	data, err := json.Marshal(product)
	if err != nil {
		logger.Error().Err(err).Msgf("Error marshalling product %d", product.ID)
		return
	}
	// Write to cache
	if err := c.rdb.Set(ctx, productKey(product.ID), data, c.ttl).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error setting product %d in cache", product.ID)
	}
}

func (c *ProductCache) Invalidate(ctx context.Context, id int64) {
	if c == nil {
		return
	}

	if err := c.rdb.Del(ctx, productKey(id)).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error deleting product %d from cache", id)
	}
}
