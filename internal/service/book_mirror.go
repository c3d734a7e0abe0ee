package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// DefaultMirrorDepth is the number of levels per side copied to the book
// cache when no depth is configured. Followers only see this many levels.
const DefaultMirrorDepth = 50

// DepthReader is a book that can hand out depth-limited snapshots.
type DepthReader interface {
	SnapshotDepth(depth int) domain.BookSnapshot
}

// BookMirror periodically copies the top of the live book to a BookCache and
// announces the BBO on the signal bus, for readers in other processes.
type BookMirror struct {
	book     DepthReader
	cache    domain.BookCache
	bus      domain.SignalBus
	interval time.Duration
	depth    int
	logger   *slog.Logger

	lastSeq int64
	lastTS  time.Time
}

// NewBookMirror creates a mirror. cache and bus may each be nil. depth <= 0
// uses DefaultMirrorDepth.
func NewBookMirror(book DepthReader, cache domain.BookCache, bus domain.SignalBus, interval time.Duration, depth int, logger *slog.Logger) *BookMirror {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if depth <= 0 {
		depth = DefaultMirrorDepth
	}
	return &BookMirror{
		book:     book,
		cache:    cache,
		bus:      bus,
		interval: interval,
		depth:    depth,
		logger:   logger.With(slog.String("component", "book_mirror")),
	}
}

// Run mirrors on every tick until ctx is cancelled.
func (m *BookMirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.mirror(ctx)
		}
	}
}

// mirror copies the book if it changed since the previous tick. A book that
// emptied is mirrored too so followers drop their stale levels; the BBO is
// only announced while both sides are present.
func (m *BookMirror) mirror(ctx context.Context) bool {
	snap := m.book.SnapshotDepth(m.depth)
	if snap.Sequence == m.lastSeq && snap.Timestamp.Equal(m.lastTS) {
		return false
	}
	m.lastSeq, m.lastTS = snap.Sequence, snap.Timestamp

	if m.cache != nil {
		if err := m.cache.SetSnapshot(ctx, snap); err != nil {
			m.logger.WarnContext(ctx, "book_mirror: set snapshot failed", slog.String("error", err.Error()))
		}
	}
	if m.bus != nil {
		if bbo, ok := snapshotBBO(snap); ok {
			payload, _ := json.Marshal(bbo)
			if err := m.bus.Publish(ctx, domain.ChannelBook, payload); err != nil {
				m.logger.WarnContext(ctx, "book_mirror: publish failed", slog.String("error", err.Error()))
			}
		}
	}
	return true
}

// snapshotBBO derives the BBO from a mirrored snapshot.
func snapshotBBO(snap domain.BookSnapshot) (domain.BBO, bool) {
	bid, okBid := snap.BestBid()
	ask, okAsk := snap.BestAsk()
	if !okBid || !okAsk {
		return domain.BBO{}, false
	}
	return domain.BBO{
		Symbol:    snap.Symbol,
		BestBid:   bid.Price,
		BestAsk:   ask.Price,
		Spread:    ask.Price - bid.Price,
		MidPrice:  (ask.Price + bid.Price) / 2,
		Timestamp: snap.Timestamp,
	}, true
}
