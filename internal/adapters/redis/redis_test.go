package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	backend "github.com/redis/go-redis/v9"

	"github.com/masltov-creations/opencommotion/internal/adapters/redis"
	"github.com/masltov-creations/opencommotion/pkg/ports/tests"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

func newClient(t *testing.T) *backend.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return backend.NewClient(&backend.Options{Addr: mr.Addr()})
}

func TestRedisArchive_Contract(t *testing.T) {
	tests.SnapshotArchiveContractTest(t, redis.NewArchiveFromClient(newClient(t)))
}

func TestRedisResultCache_Contract(t *testing.T) {
	tests.ResultCacheContractTest(t, redis.NewResultCacheFromClient(newClient(t)))
}

func TestRedisResultCache_EvictsOldestPastBound(t *testing.T) {
	cache := redis.NewResultCacheFromClient(newClient(t), redis.WithCacheSize(2))
	ctx := context.Background()

	for _, turnID := range []string{"t1", "t2", "t3"} {
		err := cache.Put(ctx, scene.TurnResult{SessionID: "s", TurnID: turnID, Revision: 1})
		require.NoError(t, err)
	}

	_, ok, err := cache.Get(ctx, "s", "t1")
	require.NoError(t, err)
	assert.False(t, ok, "oldest turn must be evicted")

	_, ok, err = cache.Get(ctx, "s", "t3")
	require.NoError(t, err)
	assert.True(t, ok)
}
