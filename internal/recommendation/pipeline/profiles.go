package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/metrics"
)

// ProfileLoader returns a requester's raw attributes, or nil when the
// requester does not exist.
type ProfileLoader func(ctx context.Context, id int64) (map[string]interface{}, error)

// ProfileCache is a read-through cache of requester profiles. Redis errors
// are logged and fall through to the loader; missing requesters are never
// cached.
type ProfileCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewProfileCache(client *redis.Client, ttl time.Duration, log logger.Logger) *ProfileCache {
	return &ProfileCache{redis: client, ttl: ttl, logger: log}
}

func profileKey(id int64) string {
	return "nisu:requester:" + strconv.FormatInt(id, 10)
}

func (c *ProfileCache) Load(ctx context.Context, id int64, load ProfileLoader) (map[string]interface{}, error) {
	if c == nil || c.redis == nil {
		return load(ctx, id)
	}

	key := profileKey(id)
	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if attrs, decodeErr := decodeProfile(raw); decodeErr == nil {
			metrics.ProfileCacheLookups.WithLabelValues("hit").Inc()
			return attrs, nil
		}
		metrics.ProfileCacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.ProfileCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.ProfileCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("profile cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	attrs, err := load(ctx, id)
	if err != nil || attrs == nil {
		return attrs, err
	}

	data, err := json.Marshal(attrs)
	if err != nil {
		return attrs, nil
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("profile cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
	return attrs, nil
}

// Invalidate drops a cached profile, typically after the winker is reindexed.
func (c *ProfileCache) Invalidate(ctx context.Context, ids ...int64) error {
	if c == nil || c.redis == nil || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = profileKey(id)
	}
	return c.redis.Del(ctx, keys...).Err()
}

func decodeProfile(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var attrs map[string]interface{}
	if err := dec.Decode(&attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
