package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// BookCache implements domain.BookCache. The snapshot is stored as one JSON
// value and the BBO as a hash so cheap readers need not decode the book.
//
// Key schema:
//
//	tcost:book:{symbol}      - JSON-encoded domain.BookSnapshot
//	tcost:book:{symbol}:bbo  - hash: bid, ask, spread, mid, ts (unix ms)
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache. A non-positive ttl keeps keys forever.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	if ttl < 0 {
		ttl = 0
	}
	return &BookCache{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(symbol string) string    { return keyPrefix + "book:" + symbol }
func bookBBOKey(symbol string) string { return keyPrefix + "book:" + symbol + ":bbo" }

// SetSnapshot replaces the cached book and BBO for snap.Symbol atomically.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	if snap.Symbol == "" {
		return fmt.Errorf("redis: set snapshot: empty symbol: %w", domain.ErrInvalidInput)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Symbol, err)
	}

	pipe := bc.rdb.TxPipeline()
	pipe.Set(ctx, bookKey(snap.Symbol), data, bc.ttl)

	bboKey := bookBBOKey(snap.Symbol)
	pipe.Del(ctx, bboKey)
	bid, okBid := snap.BestBid()
	ask, okAsk := snap.BestAsk()
	if okBid && okAsk {
		pipe.HSet(ctx, bboKey,
			"bid", formatFloat(bid.Price),
			"ask", formatFloat(ask.Price),
			"spread", formatFloat(ask.Price-bid.Price),
			"mid", formatFloat((ask.Price+bid.Price)/2),
			"ts", strconv.FormatInt(snap.Timestamp.UnixMilli(), 10),
		)
		if bc.ttl > 0 {
			pipe.Expire(ctx, bboKey, bc.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshot returns the cached book, or domain.ErrNotFound.
func (bc *BookCache) GetSnapshot(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	data, err := bc.rdb.Get(ctx, bookKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BookSnapshot{}, fmt.Errorf("redis: snapshot %s: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}
	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// GetBBO returns the cached best bid/offer, or domain.ErrNotFound.
func (bc *BookCache) GetBBO(ctx context.Context, symbol string) (domain.BBO, error) {
	vals, err := bc.rdb.HGetAll(ctx, bookBBOKey(symbol)).Result()
	if err != nil {
		return domain.BBO{}, fmt.Errorf("redis: get bbo %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.BBO{}, fmt.Errorf("redis: bbo %s: %w", symbol, domain.ErrNotFound)
	}

	bbo := domain.BBO{Symbol: symbol}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"bid", &bbo.BestBid},
		{"ask", &bbo.BestAsk},
		{"spread", &bbo.Spread},
		{"mid", &bbo.MidPrice},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(vals[f.name], 64)
		if err != nil {
			return domain.BBO{}, fmt.Errorf("redis: parse bbo %s %s: %w", symbol, f.name, err)
		}
		*f.dst = v
	}
	if ms, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		bbo.Timestamp = time.UnixMilli(ms).UTC()
	}
	return bbo, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
