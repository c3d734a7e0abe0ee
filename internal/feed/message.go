package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// ErrNotBookMessage marks well-formed frames that carry no book data, such
// as subscription acknowledgements and heartbeats.
var ErrNotBookMessage = errors.New("feed: not a book message")

// wireMessage is the L2 feed frame. Levels are [price, qty, ...] arrays whose
// elements may be JSON strings or numbers; extra elements are ignored.
type wireMessage struct {
	Kind      string               `json:"kind"`
	Action    string               `json:"action"`
	Symbol    string               `json:"symbol"`
	Exchange  string               `json:"exchange"`
	Timestamp json.RawMessage      `json:"timestamp"`
	Seq       json.Number          `json:"seq"`
	SeqID     json.Number          `json:"seqId"`
	Asks      *[][]decimal.Decimal `json:"asks"`
	Bids      *[][]decimal.Decimal `json:"bids"`
}

// DecodeMessage parses one feed frame. The kind comes from "kind" (or
// "action"), falling back to defaultKind.
func DecodeMessage(raw []byte, defaultKind domain.UpdateKind) (domain.BookUpdate, error) {
	var msg wireMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return domain.BookUpdate{}, fmt.Errorf("feed: decode: %v: %w", err, domain.ErrMalformedMessage)
	}
	if msg.Asks == nil && msg.Bids == nil {
		return domain.BookUpdate{}, ErrNotBookMessage
	}

	kind := domain.UpdateKind(strings.ToLower(strings.TrimSpace(firstNonEmpty(msg.Kind, msg.Action))))
	if kind == "" {
		kind = defaultKind
	}

	u := domain.BookUpdate{
		Kind:     kind,
		Symbol:   msg.Symbol,
		Exchange: msg.Exchange,
	}

	var err error
	if msg.Asks != nil {
		if u.Asks, err = decodeLevels(*msg.Asks); err != nil {
			return domain.BookUpdate{}, fmt.Errorf("feed: asks: %w", err)
		}
	}
	if msg.Bids != nil {
		if u.Bids, err = decodeLevels(*msg.Bids); err != nil {
			return domain.BookUpdate{}, fmt.Errorf("feed: bids: %w", err)
		}
	}

	u.Timestamp, _ = parseTimestamp(msg.Timestamp)

	seq := msg.Seq
	if seq == "" {
		seq = msg.SeqID
	}
	if seq != "" {
		if n, err := seq.Int64(); err == nil {
			u.Sequence = n
		}
	}
	return u, nil
}

func decodeLevels(raw [][]decimal.Decimal) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for i, lvl := range raw {
		if len(lvl) < 2 {
			return nil, fmt.Errorf("level %d has %d elements: %w", i, len(lvl), domain.ErrMalformedMessage)
		}
		out = append(out, domain.PriceLevel{
			Price:    lvl[0].InexactFloat64(),
			Quantity: lvl[1].InexactFloat64(),
		})
	}
	return out, nil
}

// parseTimestamp accepts RFC 3339 strings and unix epoch milliseconds, either
// quoted or bare. ok is false when the field is absent or unrecognised.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
