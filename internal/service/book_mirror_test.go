package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/cache/memory"
	"github.com/alanyoungcy/tradecost/internal/domain"
)

func TestBookMirror_MirrorsOnChange(t *testing.T) {
	book := testBook(t)
	cache := &fakeBookCache{}
	bus := memory.NewSignalBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, domain.ChannelBook)
	require.NoError(t, err)

	m := NewBookMirror(book, cache, bus, time.Second, 0, testLogger())
	assert.True(t, m.mirror(ctx))
	assert.False(t, m.mirror(ctx), "unchanged book is not mirrored twice")

	require.NoError(t, book.ApplyUpdate(domain.BookUpdate{
		Kind:     domain.UpdateIncremental,
		Asks:     []domain.PriceLevel{{Price: 100, Quantity: 0}},
		Sequence: 2,
	}))
	assert.True(t, m.mirror(ctx))
	require.Len(t, cache.snaps, 2)
	assert.Equal(t, 101.0, cache.snaps[1].Asks[0].Price)

	var bbo domain.BBO
	require.NoError(t, json.Unmarshal(<-sub, &bbo))
	assert.Equal(t, 100.0, bbo.BestAsk)
	require.NoError(t, json.Unmarshal(<-sub, &bbo))
	assert.Equal(t, 101.0, bbo.BestAsk)
}

func TestBookMirror_DepthAndBBOFromSnapshot(t *testing.T) {
	book := testBook(t)
	cache := &fakeBookCache{}
	bus := memory.NewSignalBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, domain.ChannelBook)
	require.NoError(t, err)

	m := NewBookMirror(book, cache, bus, time.Second, 2, testLogger())
	require.True(t, m.mirror(ctx))
	require.Len(t, cache.snaps, 1)
	assert.Len(t, cache.snaps[0].Asks, 2)
	assert.Len(t, cache.snaps[0].Bids, 2)

	var bbo domain.BBO
	require.NoError(t, json.Unmarshal(<-sub, &bbo))
	assert.Equal(t, domain.BBO{
		Symbol:    "BTC-USDT-SWAP",
		BestBid:   99,
		BestAsk:   100,
		Spread:    1,
		MidPrice:  99.5,
		Timestamp: cache.snaps[0].Timestamp,
	}, bbo)
}

func TestBookMirror_MirrorsEmptiedBook(t *testing.T) {
	book := testBook(t)
	cache := &fakeBookCache{}
	bus := memory.NewSignalBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, domain.ChannelBook)
	require.NoError(t, err)

	m := NewBookMirror(book, cache, bus, time.Second, 0, testLogger())
	require.True(t, m.mirror(ctx))
	<-sub

	require.NoError(t, book.ApplyUpdate(domain.BookUpdate{
		Kind:     domain.UpdateIncremental,
		Asks:     []domain.PriceLevel{{Price: 100, Quantity: 0}, {Price: 101, Quantity: 0}, {Price: 102, Quantity: 0}},
		Sequence: 2,
	}))
	assert.True(t, m.mirror(ctx), "a book that lost a side is still mirrored")
	require.Len(t, cache.snaps, 2)
	assert.Empty(t, cache.snaps[1].Asks)
	assert.Len(t, cache.snaps[1].Bids, 2)

	select {
	case <-sub:
		t.Fatal("no BBO is announced without both sides")
	default:
	}
}
