package orderbook

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lv(price, qty float64) domain.PriceLevel {
	return domain.PriceLevel{Price: price, Quantity: qty}
}

func TestBook_SnapshotOrdersSides(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids: []domain.PriceLevel{lv(99, 1), lv(100, 2), lv(98, 3)},
		Asks: []domain.PriceLevel{lv(103, 1), lv(101, 2), lv(102, 3)},
	}))

	snap := b.Snapshot()
	assert.Equal(t, []domain.PriceLevel{lv(100, 2), lv(99, 1), lv(98, 3)}, snap.Bids)
	assert.Equal(t, []domain.PriceLevel{lv(101, 2), lv(102, 3), lv(103, 1)}, snap.Asks)
	assert.False(t, snap.Crossed)
	assert.False(t, snap.Timestamp.IsZero())

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, lv(100, 2), bid)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, lv(101, 2), ask)

	spread, ok := b.Spread()
	require.True(t, ok)
	assert.InDelta(t, 1.0, spread, 1e-12)
	mid, ok := b.Mid()
	require.True(t, ok)
	assert.InDelta(t, 100.5, mid, 1e-12)
}

func TestBook_DefaultKindReplacesBook(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids: []domain.PriceLevel{lv(100, 1), lv(99, 1)},
		Asks: []domain.PriceLevel{lv(101, 1), lv(102, 1)},
	}))
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids: []domain.PriceLevel{lv(90, 5)},
		Asks: []domain.PriceLevel{lv(91, 5)},
	}))

	snap := b.Snapshot()
	assert.Equal(t, []domain.PriceLevel{lv(90, 5)}, snap.Bids)
	assert.Equal(t, []domain.PriceLevel{lv(91, 5)}, snap.Asks)
}

func TestBook_IncrementalMerge(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Kind: domain.UpdateSnapshot,
		Bids: []domain.PriceLevel{lv(100, 1), lv(99, 1)},
		Asks: []domain.PriceLevel{lv(101, 1), lv(102, 1)},
	}))
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Kind:     domain.UpdateIncremental,
		Bids:     []domain.PriceLevel{lv(100, 0), lv(99.5, 4)},
		Asks:     []domain.PriceLevel{lv(101, 7), lv(100.5, 2)},
		Sequence: 42,
	}))

	snap := b.Snapshot()
	assert.Equal(t, []domain.PriceLevel{lv(99.5, 4), lv(99, 1)}, snap.Bids)
	assert.Equal(t, []domain.PriceLevel{lv(100.5, 2), lv(101, 7), lv(102, 1)}, snap.Asks)
	assert.Equal(t, int64(42), snap.Sequence)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, 99.5, bid.Price)
}

func TestBook_DeletingLastLevelEmptiesSide(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids: []domain.PriceLevel{lv(100, 1)},
		Asks: []domain.PriceLevel{lv(101, 1)},
	}))
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Kind: domain.UpdateIncremental,
		Asks: []domain.PriceLevel{lv(101, 0)},
	}))

	_, ok := b.BestAsk()
	assert.False(t, ok)
	_, ok = b.Spread()
	assert.False(t, ok)
	_, ok = b.Mid()
	assert.False(t, ok)
	_, ok = b.BBO()
	assert.False(t, ok)
}

func TestBook_EmptyBook(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)
	snap := b.Snapshot()
	assert.True(t, snap.Empty())
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestBook_CrossedBookIsAcceptedAndCounted(t *testing.T) {
	m := metrics.New()
	b := New("BTC-USDT-SWAP", "OKX", m, testLogger())
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids: []domain.PriceLevel{lv(101, 1)},
		Asks: []domain.PriceLevel{lv(100, 1)},
	}))

	assert.True(t, b.Crossed())
	assert.True(t, b.Snapshot().Crossed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CrossedBooks))

	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids: []domain.PriceLevel{lv(99, 1)},
		Asks: []domain.PriceLevel{lv(100, 1)},
	}))
	assert.False(t, b.Crossed())
}

func TestBook_InvalidLevelsAreSkipped(t *testing.T) {
	m := metrics.New()
	b := New("BTC-USDT-SWAP", "OKX", m, testLogger())
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids: []domain.PriceLevel{lv(100, -1), lv(0, 1), lv(99, 2)},
		Asks: []domain.PriceLevel{lv(101, 3)},
	}))

	snap := b.Snapshot()
	assert.Equal(t, []domain.PriceLevel{lv(99, 2)}, snap.Bids)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RejectedLevels))
}

func TestBook_RejectsUnknownKindAndForeignSymbol(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())

	err := b.ApplyUpdate(domain.BookUpdate{Kind: "diff"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	err = b.ApplyUpdate(domain.BookUpdate{Symbol: "ETH-USDT-SWAP", Asks: []domain.PriceLevel{lv(1, 1)}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.True(t, b.Snapshot().Empty())
}

func TestBook_SnapshotDepthAndTimestamp(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	ts := time.Date(2025, 5, 4, 10, 39, 13, 0, time.UTC)
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids:      []domain.PriceLevel{lv(100, 1), lv(99, 1), lv(98, 1)},
		Asks:      []domain.PriceLevel{lv(101, 1), lv(102, 1), lv(103, 1)},
		Timestamp: ts,
	}))

	snap := b.SnapshotDepth(2)
	assert.Len(t, snap.Bids, 2)
	assert.Len(t, snap.Asks, 2)
	assert.Equal(t, 102.0, snap.Asks[1].Price)
	assert.Equal(t, ts, snap.Timestamp)

	bbo, ok := b.BBO()
	require.True(t, ok)
	assert.Equal(t, 100.5, bbo.MidPrice)
}

func TestBook_SnapshotCopiesAreIndependent(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	require.NoError(t, b.ApplyUpdate(domain.BookUpdate{
		Bids: []domain.PriceLevel{lv(100, 1)},
		Asks: []domain.PriceLevel{lv(101, 1)},
	}))
	snap := b.Snapshot()
	snap.Asks[0].Quantity = 999

	ask, _ := b.BestAsk()
	assert.Equal(t, 1.0, ask.Quantity)
}

// Each update writes a self-consistent ladder: every ask level carries the
// same quantity. A torn read would mix quantities from two updates.
func TestBook_ConcurrentReadersNeverSeeTornUpdates(t *testing.T) {
	b := New("BTC-USDT-SWAP", "OKX", nil, testLogger())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			q := float64(i)
			_ = b.ApplyUpdate(domain.BookUpdate{
				Bids: []domain.PriceLevel{lv(100, q), lv(99, q)},
				Asks: []domain.PriceLevel{lv(101, q), lv(102, q), lv(103, q)},
			})
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := b.Snapshot()
				for _, a := range snap.Asks {
					if a.Quantity != snap.Asks[0].Quantity {
						t.Errorf("torn snapshot: %+v", snap.Asks)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
