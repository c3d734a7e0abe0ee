package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// Replay applies a stream of recorded feed frames from r to book, in order,
// announcing each applied update on events. Frames may be newline-delimited
// or pretty-printed JSON objects. Non-book frames are skipped. It returns the
// number of applied frames.
func Replay(ctx context.Context, r io.Reader, book domain.BookSource, events chan<- domain.BookEvent, defaultKind domain.UpdateKind, logger *slog.Logger) (int, error) {
	logger = logger.With(slog.String("component", "feed_replay"))
	if defaultKind == "" {
		defaultKind = domain.UpdateSnapshot
	}

	dec := json.NewDecoder(r)
	applied := 0
	for frame := 1; ; frame++ {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return applied, nil
			}
			return applied, fmt.Errorf("feed: replay frame %d: %v: %w", frame, err, domain.ErrMalformedMessage)
		}
		u, err := DecodeMessage(raw, defaultKind)
		if errors.Is(err, ErrNotBookMessage) {
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("feed: replay frame %d: %w", frame, err)
		}
		if apply(book, u, events, logger) {
			applied++
		}
	}
}
