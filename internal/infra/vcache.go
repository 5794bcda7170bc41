package infra

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// VerifyCache — Redis-кэш результатов спот-проверок с TTL. Промахи и
// ошибки Redis неотличимы для вызывающего: проверка просто идет заново.
type VerifyCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewVerifyCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *VerifyCache {
	return &VerifyCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With(zap.String("mod", "verify-cache")),
	}
}

func (c *VerifyCache) Get(ctx context.Context, eventID string) (bool, bool) {
	val, err := c.rdb.Get(ctx, GetVerifyCacheKey(eventID)).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.logger.Warn("verify cache read failed", zap.Error(err))
		return false, false
	}
	return val == "1", true
}

func (c *VerifyCache) Set(ctx context.Context, eventID string, ok bool) {
	val := "0"
	if ok {
		val = "1"
	}
	if err := c.rdb.Set(ctx, GetVerifyCacheKey(eventID), val, c.ttl).Err(); err != nil {
		c.logger.Warn("verify cache write failed", zap.Error(err))
	}
}
