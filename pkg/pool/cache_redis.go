package pool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/log"
)

// RedisCache backs UtilizationCache with a shared redis instance so a
// multi-replica orchestrator deployment shares one utilization view instead
// of each replica polling providers independently.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "hodei:utilization:", logger: log.WithComponent("pool.rediscache")}
}

func (c *RedisCache) Get(ctx context.Context, poolID string) (Utilization, bool) {
	raw, err := c.client.Get(ctx, c.prefix+poolID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("pool_id", poolID).Msg("utilization cache get failed")
		}
		return Utilization{}, false
	}
	var u Utilization
	if err := json.Unmarshal(raw, &u); err != nil {
		c.logger.Warn().Err(err).Str("pool_id", poolID).Msg("utilization cache entry corrupt")
		return Utilization{}, false
	}
	return u, true
}

func (c *RedisCache) Set(ctx context.Context, poolID string, u Utilization, ttl time.Duration) {
	raw, err := json.Marshal(u)
	if err != nil {
		c.logger.Warn().Err(err).Str("pool_id", poolID).Msg("utilization cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, c.prefix+poolID, raw, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("pool_id", poolID).Msg("utilization cache set failed")
	}
}
