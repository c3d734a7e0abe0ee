// Package memory provides in-process implementations of the cache-layer
// interfaces, used when Redis is not configured.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

const subscriberBuffer = 64

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)

type subscriber struct {
	pattern string
	ch      chan []byte
}

// SignalBus is a fan-out pub/sub bus. Slow subscribers lose messages rather
// than blocking publishers. Streams keep the last maxLen entries.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	streams map[string][][]byte
	maxLen  int
}

// NewSignalBus creates a bus whose streams keep at most maxLen entries.
func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &SignalBus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][][]byte),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every subscriber whose pattern matches
// channel.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !matchChannel(s.pattern, channel) {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel. A trailing
// "*" matches by prefix. The channel is closed when ctx is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend appends payload to stream, trimming the oldest entries.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := append(b.streams[stream], payload)
	if len(entries) > b.maxLen {
		entries = entries[len(entries)-b.maxLen:]
	}
	b.streams[stream] = entries
	return nil
}

// StreamLen returns the number of entries kept for stream.
func (b *SignalBus) StreamLen(stream string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams[stream])
}

// StreamTail returns up to count of the newest entries in stream, newest
// first.
func (b *SignalBus) StreamTail(_ context.Context, stream string, count int64) ([][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.streams[stream]
	n := min(int(count), len(entries))
	out := make([][]byte, 0, max(n, 0))
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func matchChannel(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}
