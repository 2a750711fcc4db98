//go:build integration

package stats

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
)

const integrationKey = "sms_simulator_stats"

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis uri: %v", err)
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		t.Fatalf("failed to ping redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestRedisKV_GetAbsentAndSet(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	kv := NewRedisKV(client, 10)

	_, found, err := kv.Get(ctx, integrationKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Set(ctx, integrationKey, `{"sent":1,"failed":0,"total_time":0.5}`))

	value, found, err := kv.Get(ctx, integrationKey)
	require.NoError(t, err)
	assert.True(t, found)

	agg, err := ParseAggregate(value)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{Sent: 1, TotalTime: 0.5}, agg)
}

func TestRedisKV_AtomicUpdatesUnderConcurrency(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	store, err := NewStore(NewRedisKV(client, 100), integrationKey, PolicyAtomic)
	require.NoError(t, err)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				d := Success(100 * time.Millisecond)
				if j%5 == 0 {
					d = Failure()
				}
				assert.NoError(t, store.Update(ctx, d))
			}
		}(i)
	}
	wg.Wait()

	agg, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(writers*perWriter), agg.Sent+agg.Failed)
	assert.Equal(t, uint64(writers*5), agg.Failed)
	assert.InDelta(t, float64(agg.Sent)*0.1, agg.TotalTime, 1e-6)
}

func TestRedisKV_ApplyLeavesCorruptValue(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, integrationKey, "not json", 0).Err())

	store, err := NewStore(NewRedisKV(client, 10), integrationKey, PolicyAtomic)
	require.NoError(t, err)

	err = store.Update(ctx, Success(time.Second))
	require.Error(t, err)

	raw, err := client.Get(ctx, integrationKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "not json", raw)
}

func TestRedisKV_Ping(t *testing.T) {
	client := setupRedis(t)
	assert.NoError(t, NewRedisKV(client, 1).Ping(context.Background()))
}
