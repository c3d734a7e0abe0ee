package domain

import "time"

// PriceLevel is a single aggregated price+quantity entry in an L2 book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Notional returns price × quantity in quote currency.
func (l PriceLevel) Notional() float64 {
	return l.Price * l.Quantity
}

// UpdateKind says how a BookUpdate is merged into the current book.
type UpdateKind string

const (
	// UpdateSnapshot replaces both sides wholesale.
	UpdateSnapshot UpdateKind = "snapshot"
	// UpdateIncremental merges levels; a zero quantity deletes the price.
	UpdateIncremental UpdateKind = "update"
)

// BookUpdate is one parsed feed message.
type BookUpdate struct {
	Kind      UpdateKind
	Symbol    string
	Exchange  string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
	Sequence  int64 // 0 when the feed carries none
}

// BookSnapshot is an immutable copy of the order book at one instant.
// Asks are ascending by price, bids descending.
type BookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Exchange  string       `json:"exchange"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
	Sequence  int64        `json:"sequence,omitempty"`
	Crossed   bool         `json:"crossed"`
}

// BestBid returns the highest bid, false if the bid side is empty.
func (s BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask, false if the ask side is empty.
func (s BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Spread returns best ask minus best bid, false if either side is empty.
func (s BookSnapshot) Spread() (float64, bool) {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// Mid returns the midpoint of best bid and best ask, false if either side
// is empty.
func (s BookSnapshot) Mid() (float64, bool) {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (ask.Price + bid.Price) / 2, true
}

// Empty reports whether either side has no levels.
func (s BookSnapshot) Empty() bool {
	return len(s.Bids) == 0 || len(s.Asks) == 0
}

// BookSource is anything that can absorb feed updates and hand out
// consistent snapshots. Alternate feed sources write through it.
type BookSource interface {
	ApplyUpdate(update BookUpdate) error
	Snapshot() BookSnapshot
}

// BBO is the best bid/offer summary mirrored to caches and clients.
type BBO struct {
	Symbol    string    `json:"symbol"`
	BestBid   float64   `json:"best_bid"`
	BestAsk   float64   `json:"best_ask"`
	Spread    float64   `json:"spread"`
	MidPrice  float64   `json:"mid_price"`
	Timestamp time.Time `json:"timestamp"`
}
