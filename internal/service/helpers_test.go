package service

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/cost"
	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/orderbook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAggregator() *cost.Aggregator {
	logger := testLogger()
	return cost.NewAggregator(
		cost.NewFeeSchedule(cost.OKXTakerRates(), cost.DefaultTakerRate, logger),
		cost.NewImpactModel(0.1, map[string]float64{"BTC-USDT-SWAP": 5e9}, 0, logger),
		logger,
	)
}

// testBook returns a book with a 1 USD spread and 1221 USD of ask depth.
func testBook(t *testing.T) *orderbook.Book {
	t.Helper()
	book := orderbook.New("BTC-USDT-SWAP", "OKX", nil, testLogger())
	require.NoError(t, book.ApplyUpdate(domain.BookUpdate{
		Kind:      domain.UpdateSnapshot,
		Symbol:    "BTC-USDT-SWAP",
		Asks:      []domain.PriceLevel{{Price: 100, Quantity: 1}, {Price: 101, Quantity: 1}, {Price: 102, Quantity: 10}},
		Bids:      []domain.PriceLevel{{Price: 99, Quantity: 5}, {Price: 98, Quantity: 5}},
		Timestamp: time.Date(2025, 5, 4, 10, 39, 13, 0, time.UTC),
		Sequence:  1,
	}))
	return book
}
