package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ammar1510/rideshare/internal/models"
)

const keyPrefix = "profile:"

// RedisCache keeps JSON-encoded profiles under profile:<id> with a TTL
type RedisCache struct {
	Cli *redis.Client
	ttl time.Duration
}

func NewRedisCache(cli *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Cli: cli, ttl: ttl}
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func (c *RedisCache) Get(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	values, err := c.Cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	hits := make(map[uuid.UUID]*models.Profile, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p models.Profile
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			log.Warn("Discarding corrupt cache entry %s: %v", keys[i], err)
			continue
		}
		hits[ids[i]] = &p
	}
	return hits, nil
}

func (c *RedisCache) Set(ctx context.Context, profiles []*models.Profile) error {
	pipe := c.Cli.Pipeline()
	for _, p := range profiles {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.Set(ctx, key(p.ID), data, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.Cli.Del(ctx, key(id)).Err()
}

func (c *RedisCache) Close() error {
	return c.Cli.Close()
}
