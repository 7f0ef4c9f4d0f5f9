package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nisu-recommender/internal/common/logger"
)

func countingLoader(attrs map[string]interface{}) (ProfileLoader, *int) {
	calls := 0
	return func(_ context.Context, _ int64) (map[string]interface{}, error) {
		calls++
		return attrs, nil
	}, &calls
}

func TestProfileCache_ReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewProfileCache(client, 10*time.Minute, logger.NewTestLogger(t))

	load, calls := countingLoader(map[string]interface{}{"id": 100, "bio": "jazz"})
	ctx := context.Background()

	first, err := cache.Load(ctx, 100, load)
	require.NoError(t, err)
	second, err := cache.Load(ctx, 100, load)
	require.NoError(t, err)

	assert.Equal(t, 1, *calls)
	assert.Equal(t, "jazz", first["bio"])
	assert.Equal(t, "jazz", second["bio"])
	assert.Equal(t, json.Number("100"), second["id"], "cached numbers decode exactly")
	assert.True(t, mr.Exists("nisu:requester:100"))
	assert.Equal(t, 10*time.Minute, mr.TTL("nisu:requester:100"))

	require.NoError(t, cache.Invalidate(ctx, 100))
	assert.False(t, mr.Exists("nisu:requester:100"))
}

func TestProfileCache_MissingRequesterIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewProfileCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, logger.NewTestLogger(t))

	load, calls := countingLoader(nil)
	for i := 0; i < 2; i++ {
		attrs, err := cache.Load(context.Background(), 404, load)
		require.NoError(t, err)
		assert.Nil(t, attrs)
	}
	assert.Equal(t, 2, *calls)
	assert.False(t, mr.Exists("nisu:requester:404"))
}

func TestProfileCache_RedisErrorsFallThrough(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewProfileCache(client, time.Minute, logger.NewTestLogger(t))

	mock.ExpectGet("nisu:requester:7").SetErr(errors.New("connection refused"))
	mock.Regexp().ExpectSet("nisu:requester:7", `.*`, time.Minute).SetErr(errors.New("connection refused"))

	load, calls := countingLoader(map[string]interface{}{"id": 7})
	attrs, err := cache.Load(context.Background(), 7, load)
	require.NoError(t, err)

	assert.Equal(t, 1, *calls)
	assert.Equal(t, 7, attrs["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileCache_LoaderErrorPropagates(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewProfileCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, logger.NewTestLogger(t))

	_, err := cache.Load(context.Background(), 1, func(context.Context, int64) (map[string]interface{}, error) {
		return nil, errors.New("db down")
	})
	require.EqualError(t, err, "db down")
}

func TestProfileCache_NilCacheCallsLoader(t *testing.T) {
	var cache *ProfileCache
	load, calls := countingLoader(map[string]interface{}{"id": 1})
	_, err := cache.Load(context.Background(), 1, load)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
}
