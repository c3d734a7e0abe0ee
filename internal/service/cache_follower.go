package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// CacheFollower rebuilds a local book from the snapshots another process
// mirrors into the book cache. It is the book source of monitor mode.
type CacheFollower struct {
	cache    domain.BookCache
	book     domain.BookSource
	symbol   string
	events   chan<- domain.BookEvent
	onStatus func(domain.ConnectivityEvent)
	interval time.Duration
	logger   *slog.Logger

	lastSeq int64
	lastTS  time.Time
	missing bool
}

// NewCacheFollower creates a follower for symbol. events and onStatus may be
// nil.
func NewCacheFollower(cache domain.BookCache, book domain.BookSource, symbol string, events chan<- domain.BookEvent, onStatus func(domain.ConnectivityEvent), interval time.Duration, logger *slog.Logger) *CacheFollower {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &CacheFollower{
		cache:    cache,
		book:     book,
		symbol:   symbol,
		events:   events,
		onStatus: onStatus,
		interval: interval,
		logger:   logger.With(slog.String("component", "cache_follower")),
	}
}

// Run polls the cache until ctx is cancelled.
func (f *CacheFollower) Run(ctx context.Context) error {
	f.emit(domain.StateConnected, "")
	defer f.emit(domain.StateDisconnectedClean, "")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		f.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll applies the cached snapshot when it differs from the last one seen.
func (f *CacheFollower) poll(ctx context.Context) bool {
	snap, err := f.cache.GetSnapshot(ctx, f.symbol)
	if errors.Is(err, domain.ErrNotFound) {
		if !f.missing {
			f.logger.WarnContext(ctx, "cache_follower: no mirrored book yet", slog.String("symbol", f.symbol))
			f.missing = true
		}
		return false
	}
	if err != nil {
		f.emit(domain.StateDisconnectedError, err.Error())
		return false
	}
	f.missing = false
	if snap.Sequence == f.lastSeq && snap.Timestamp.Equal(f.lastTS) {
		return false
	}

	err = f.book.ApplyUpdate(domain.BookUpdate{
		Kind:      domain.UpdateSnapshot,
		Symbol:    snap.Symbol,
		Exchange:  snap.Exchange,
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		Timestamp: snap.Timestamp,
		Sequence:  snap.Sequence,
	})
	if err != nil {
		f.logger.WarnContext(ctx, "cache_follower: snapshot rejected", slog.String("error", err.Error()))
		return false
	}
	f.lastSeq, f.lastTS = snap.Sequence, snap.Timestamp
	f.emit(domain.StateDataUpdate, "")

	if f.events != nil {
		select {
		case f.events <- domain.BookEvent{Symbol: snap.Symbol, Sequence: snap.Sequence, Timestamp: snap.Timestamp}:
		default:
		}
	}
	return true
}

func (f *CacheFollower) emit(state domain.ConnectivityState, msg string) {
	if f.onStatus == nil {
		return
	}
	f.onStatus(domain.ConnectivityEvent{State: state, Source: "cache:" + f.symbol, Message: msg, At: time.Now()})
}
