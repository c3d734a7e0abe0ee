package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/orderbook"
)

func TestCacheFollower_AppliesMirroredSnapshots(t *testing.T) {
	src := testBook(t)
	cache := &fakeBookCache{}
	local := orderbook.New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	events := make(chan domain.BookEvent, 1)
	var states []domain.ConnectivityState
	f := NewCacheFollower(cache, local, "BTC-USDT-SWAP", events, func(ev domain.ConnectivityEvent) {
		states = append(states, ev.State)
	}, time.Second, testLogger())
	ctx := context.Background()

	assert.False(t, f.poll(ctx), "nothing mirrored yet")

	m := NewBookMirror(src, cache, nil, time.Second, 0, testLogger())
	require.True(t, m.mirror(ctx))

	assert.True(t, f.poll(ctx))
	assert.False(t, f.poll(ctx), "same snapshot is applied once")

	snap := local.Snapshot()
	require.Len(t, snap.Asks, 3)
	assert.Equal(t, 100.0, snap.Asks[0].Price)
	assert.Equal(t, int64(1), snap.Sequence)

	ev := <-events
	assert.Equal(t, int64(1), ev.Sequence)
	assert.Equal(t, []domain.ConnectivityState{domain.StateDataUpdate}, states)
}

func TestCacheFollower_RunReportsConnectivity(t *testing.T) {
	var states []domain.ConnectivityState
	f := NewCacheFollower(&fakeBookCache{}, orderbook.New("X", "Y", nil, testLogger()), "X", nil,
		func(ev domain.ConnectivityEvent) { states = append(states, ev.State) },
		10*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := f.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, domain.StateConnected, states[0])
	assert.Equal(t, domain.StateDisconnectedClean, states[len(states)-1])
}
