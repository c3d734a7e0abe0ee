// Package orderbook maintains an in-memory L2 order book from streaming
// feed updates. The ingestion path is the only writer; every other
// component reads through Snapshot.
package orderbook

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/metrics"
)

// Book is the live order book for a single instrument.
type Book struct {
	mu        sync.RWMutex
	symbol    string
	exchange  string
	timestamp time.Time
	sequence  int64
	bids      side
	asks      side
	crossed   bool

	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ domain.BookSource = (*Book)(nil)

// New creates an empty book. Updates carrying a different non-empty symbol
// are rejected.
func New(symbol, exchange string, m *metrics.Metrics, logger *slog.Logger) *Book {
	return &Book{
		symbol:   symbol,
		exchange: exchange,
		bids:     side{desc: true},
		asks:     side{desc: false},
		metrics:  m,
		logger:   logger.With(slog.String("component", "orderbook"), slog.String("symbol", symbol)),
	}
}

// rejectedLevel is collected under the lock and logged after it is released.
type rejectedLevel struct {
	side  string
	level domain.PriceLevel
}

// ApplyUpdate merges or replaces levels according to u.Kind. An empty kind
// is treated as a snapshot. The whole message is applied under the write
// lock so readers never observe a partially applied update.
func (b *Book) ApplyUpdate(u domain.BookUpdate) error {
	kind := u.Kind
	if kind == "" {
		kind = domain.UpdateSnapshot
	}
	if kind != domain.UpdateSnapshot && kind != domain.UpdateIncremental {
		return fmt.Errorf("orderbook: unknown update kind %q: %w", kind, domain.ErrInvalidInput)
	}
	if u.Symbol != "" && b.symbol != "" && u.Symbol != b.symbol {
		return fmt.Errorf("orderbook: update for %s applied to %s book: %w", u.Symbol, b.symbol, domain.ErrInvalidInput)
	}

	var rejected []rejectedLevel

	b.mu.Lock()
	if kind == domain.UpdateSnapshot {
		b.bids.clear()
		b.asks.clear()
	}
	rejected = applyLevels(&b.bids, "bid", u.Bids, rejected)
	rejected = applyLevels(&b.asks, "ask", u.Asks, rejected)
	b.bids.refreshBest()
	b.asks.refreshBest()

	if u.Timestamp.IsZero() {
		b.timestamp = time.Now().UTC()
	} else {
		b.timestamp = u.Timestamp
	}
	if u.Sequence != 0 {
		b.sequence = u.Sequence
	}
	if b.symbol == "" {
		b.symbol = u.Symbol
	}
	if u.Exchange != "" {
		b.exchange = u.Exchange
	}
	b.crossed = b.bids.hasBest && b.asks.hasBest && b.asks.best.Price <= b.bids.best.Price
	crossed := b.crossed
	bestBid, bestAsk := b.bids.best, b.asks.best
	nBids, nAsks := b.bids.len(), b.asks.len()
	b.mu.Unlock()

	for _, r := range rejected {
		b.metrics.ObserveRejectedLevel()
		b.logger.Warn("orderbook: skipping invalid level",
			slog.String("side", r.side),
			slog.Float64("price", r.level.Price),
			slog.Float64("quantity", r.level.Quantity),
		)
	}
	if crossed {
		b.logger.Warn("orderbook: crossed book",
			slog.Float64("best_bid", bestBid.Price),
			slog.Float64("best_ask", bestAsk.Price),
		)
	}
	b.metrics.ObserveBookUpdate(string(kind), nBids, nAsks, crossed)
	return nil
}

func applyLevels(s *side, name string, levels []domain.PriceLevel, rejected []rejectedLevel) []rejectedLevel {
	for _, lvl := range levels {
		if !validLevel(lvl) {
			rejected = append(rejected, rejectedLevel{side: name, level: lvl})
			continue
		}
		if lvl.Quantity == 0 {
			s.remove(lvl.Price)
			continue
		}
		s.upsert(lvl.Price, lvl.Quantity)
	}
	return rejected
}

func validLevel(lvl domain.PriceLevel) bool {
	if math.IsNaN(lvl.Price) || math.IsInf(lvl.Price, 0) || lvl.Price <= 0 {
		return false
	}
	if math.IsNaN(lvl.Quantity) || math.IsInf(lvl.Quantity, 0) || lvl.Quantity < 0 {
		return false
	}
	return true
}

// BestBid returns the highest bid, false if the bid side is empty.
func (b *Book) BestBid() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.best, b.bids.hasBest
}

// BestAsk returns the lowest ask, false if the ask side is empty.
func (b *Book) BestAsk() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.best, b.asks.hasBest
}

// Spread returns best ask minus best bid, false if either side is empty.
func (b *Book) Spread() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.bids.hasBest || !b.asks.hasBest {
		return 0, false
	}
	return b.asks.best.Price - b.bids.best.Price, true
}

// Mid returns the midpoint of the best levels, false if either side is empty.
func (b *Book) Mid() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.bids.hasBest || !b.asks.hasBest {
		return 0, false
	}
	return (b.asks.best.Price + b.bids.best.Price) / 2, true
}

// Crossed reports whether the last applied update left the book crossed.
func (b *Book) Crossed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.crossed
}

// Snapshot returns a full copy of both sides taken under one read lock.
func (b *Book) Snapshot() domain.BookSnapshot {
	return b.SnapshotDepth(0)
}

// SnapshotDepth is Snapshot limited to the best depth levels per side.
// depth <= 0 copies everything.
func (b *Book) SnapshotDepth(depth int) domain.BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return domain.BookSnapshot{
		Symbol:    b.symbol,
		Exchange:  b.exchange,
		Bids:      b.bids.copyLevels(depth),
		Asks:      b.asks.copyLevels(depth),
		Timestamp: b.timestamp,
		Sequence:  b.sequence,
		Crossed:   b.crossed,
	}
}

// BBO summarises the best levels; ok is false if either side is empty.
func (b *Book) BBO() (domain.BBO, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.bids.hasBest || !b.asks.hasBest {
		return domain.BBO{Symbol: b.symbol, Timestamp: b.timestamp}, false
	}
	bid, ask := b.bids.best.Price, b.asks.best.Price
	return domain.BBO{
		Symbol:    b.symbol,
		BestBid:   bid,
		BestAsk:   ask,
		Spread:    ask - bid,
		MidPrice:  (ask + bid) / 2,
		Timestamp: b.timestamp,
	}, true
}

// Symbol returns the instrument the book tracks.
func (b *Book) Symbol() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.symbol
}
