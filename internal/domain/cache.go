package domain

import (
	"context"
	"time"
)

// BookCache mirrors the latest order-book snapshot for out-of-process readers.
type BookCache interface {
	SetSnapshot(ctx context.Context, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, symbol string) (BookSnapshot, error)
	GetBBO(ctx context.Context, symbol string) (BBO, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Bus channel and stream names.
const (
	ChannelEstimate = "ch:estimate"
	ChannelBook     = "ch:book"
	ChannelStatus   = "ch:status"
	ChannelModel    = "ch:model"
	StreamLogRecord = "stream:slippage_log"
)

// RateLimiter limits requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
