package orderbook

import (
	"github.com/tidwall/btree"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// side is one half of the book: a price-keyed ordered map plus a cached
// best level. Bids iterate from the highest price, asks from the lowest.
type side struct {
	levels  btree.Map[float64, float64]
	desc    bool
	best    domain.PriceLevel
	hasBest bool
}

func (s *side) upsert(price, qty float64) {
	s.levels.Set(price, qty)
}

func (s *side) remove(price float64) {
	s.levels.Delete(price)
}

func (s *side) clear() {
	s.levels = btree.Map[float64, float64]{}
	s.best = domain.PriceLevel{}
	s.hasBest = false
}

// refreshBest must run after every mutation batch.
func (s *side) refreshBest() {
	var price, qty float64
	var ok bool
	if s.desc {
		price, qty, ok = s.levels.Max()
	} else {
		price, qty, ok = s.levels.Min()
	}
	s.best = domain.PriceLevel{Price: price, Quantity: qty}
	s.hasBest = ok
}

func (s *side) len() int {
	return s.levels.Len()
}

// copyLevels returns up to limit levels in priority order; limit <= 0
// copies the whole side.
func (s *side) copyLevels(limit int) []domain.PriceLevel {
	n := s.levels.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.PriceLevel, 0, n)
	iter := func(price, qty float64) bool {
		out = append(out, domain.PriceLevel{Price: price, Quantity: qty})
		return len(out) < n
	}
	if n == 0 {
		return out
	}
	if s.desc {
		s.levels.Reverse(iter)
	} else {
		s.levels.Scan(iter)
	}
	return out
}
