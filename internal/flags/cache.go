package flags

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "todo-api:flag:"

// CachedClient はフラグ評価の結果をRedisにキャッシュするClientです。
// Redisが使えない場合はそのまま内側のClientに問い合わせます。エラー結果はキャッシュしません。
type CachedClient struct {
	next   Client
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCachedClient は新しいCachedClientを作成します。
func NewCachedClient(next Client, rdb *redis.Client, ttl time.Duration, logger *log.Logger) *CachedClient {
	if logger == nil {
		logger = log.Default()
	}
	return &CachedClient{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(flag, distinctID string) string {
	return cacheKeyPrefix + flag + ":" + distinctID
}

// IsEnabled はキャッシュを確認し、なければ内側のClientで評価して保存します。
func (c *CachedClient) IsEnabled(ctx context.Context, flag, distinctID string) (bool, error) {
	key := cacheKey(flag, distinctID)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached == "1", nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("flag cache read failed", "key", key, "err", err)
	}

	enabled, err := c.next.IsEnabled(ctx, flag, distinctID)
	if err != nil {
		return false, err
	}

	value := "0"
	if enabled {
		value = "1"
	}
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("flag cache write failed", "key", key, "err", err)
	}
	return enabled, nil
}
