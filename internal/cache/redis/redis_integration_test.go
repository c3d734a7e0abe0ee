//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

func setupRedis(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{Addr: opts.Addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegration_BookCache(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	cache := NewBookCache(c, time.Minute)

	_, err := cache.GetSnapshot(ctx, "BTC-USDT-SWAP")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	snap := domain.BookSnapshot{
		Symbol:    "BTC-USDT-SWAP",
		Exchange:  "OKX",
		Bids:      []domain.PriceLevel{{Price: 99, Quantity: 2}},
		Asks:      []domain.PriceLevel{{Price: 100, Quantity: 1}, {Price: 101, Quantity: 3}},
		Timestamp: time.Date(2025, 5, 4, 10, 39, 13, 0, time.UTC),
		Sequence:  7,
	}
	require.NoError(t, cache.SetSnapshot(ctx, snap))

	got, err := cache.GetSnapshot(ctx, "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	bbo, err := cache.GetBBO(ctx, "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 99.0, bbo.BestBid)
	assert.Equal(t, 100.0, bbo.BestAsk)
	assert.Equal(t, 99.5, bbo.MidPrice)
	assert.Equal(t, snap.Timestamp, bbo.Timestamp)
}

func TestIntegration_SignalBus(t *testing.T) {
	c := setupRedis(t)
	bus := NewSignalBus(c, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "ch:*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelEstimate, []byte(`{"status":"ok"}`)))

	select {
	case msg := <-sub:
		assert.JSONEq(t, `{"status":"ok"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message")
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamLogRecord, []byte{'0' + byte(i)}))
	}
	tail, err := bus.StreamTail(ctx, domain.StreamLogRecord, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("2"), []byte("1")}, tail)
}

func TestIntegration_LockAndRateLimit(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	locks := NewLockManager(c)
	unlock, err := locks.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)
	_, err = locks.Acquire(ctx, "archive", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	unlock()
	unlock()
	unlock2, err := locks.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)
	unlock2()

	rl := NewRateLimiter(c)
	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
