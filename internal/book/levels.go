package book

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// priceEps is the tolerance for treating two parsed prices as the same level
// and a parsed size as zero. Feed prices are 0-1 with at most six decimals,
// so float64 comparison at 1e-8 is safe.
const priceEps = 1e-8

// Side identifies which half of a book a ladder maintains.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// ParseSide maps the feed's side tags onto a ladder side. BUY activity lands
// on the bid ladder, SELL on the ask ladder.
func ParseSide(raw string) (Side, error) {
	switch raw {
	case "BUY", "buy", "bid":
		return Bid, nil
	case "SELL", "sell", "ask":
		return Ask, nil
	}
	return 0, fmt.Errorf("book: unknown side %q", raw)
}

// Level is a single price level as carried on the wire: decimal strings for
// both price and size.
type Level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Ladder maintains one side of one book as unique-by-price levels in the
// side's canonical order: bids strictly descending, asks strictly ascending.
// Index 0 is always the best price. Not safe for concurrent use; the owning
// Book serializes access.
type Ladder struct {
	side   Side
	levels []Level
	prices []float64 // parsed prices, parallel to levels
}

// NewLadder returns an empty ladder for the given side.
func NewLadder(side Side) *Ladder {
	return &Ladder{side: side}
}

// ApplySnapshot replaces the entire ladder content with the given levels,
// establishing a fresh baseline. Zero-size and unparsable entries are
// discarded; duplicate prices keep the last occurrence.
func (l *Ladder) ApplySnapshot(levels []Level) {
	l.levels = l.levels[:0]
	l.prices = l.prices[:0]
	for _, lv := range levels {
		px, err := strconv.ParseFloat(lv.Price, 64)
		if err != nil {
			continue
		}
		sz, err := strconv.ParseFloat(lv.Size, 64)
		if err != nil || math.Abs(sz) < priceEps {
			continue
		}
		l.upsert(px, lv)
	}
}

// ApplyDelta upserts a single level. A size that parses to zero removes the
// level at price (no-op if absent). An unparsable price or size is an error;
// the caller logs and drops the delta without touching the ladder.
func (l *Ladder) ApplyDelta(price, size string) error {
	px, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return fmt.Errorf("book: bad price %q: %w", price, err)
	}
	sz, err := strconv.ParseFloat(size, 64)
	if err != nil {
		return fmt.Errorf("book: bad size %q: %w", size, err)
	}
	if math.Abs(sz) < priceEps {
		l.remove(px)
		return nil
	}
	l.upsert(px, Level{Price: price, Size: size})
	return nil
}

// Best returns the level at the ordering-favorable end, or false if empty.
func (l *Ladder) Best() (Level, bool) {
	if len(l.levels) == 0 {
		return Level{}, false
	}
	return l.levels[0], true
}

// BestPrice returns the parsed best price, or false if the ladder is empty.
func (l *Ladder) BestPrice() (float64, bool) {
	if len(l.prices) == 0 {
		return 0, false
	}
	return l.prices[0], true
}

// Depth returns the number of levels.
func (l *Ladder) Depth() int {
	return len(l.levels)
}

// Levels returns a copy of the ladder in canonical order.
func (l *Ladder) Levels() []Level {
	out := make([]Level, len(l.levels))
	copy(out, l.levels)
	return out
}

// insertionPoint returns the index of the first existing level whose price is
// not strictly better than px. Bids order descending, asks ascending.
func (l *Ladder) insertionPoint(px float64) int {
	return sort.Search(len(l.prices), func(i int) bool {
		if l.side == Bid {
			return l.prices[i] <= px+priceEps
		}
		return l.prices[i] >= px-priceEps
	})
}

func (l *Ladder) upsert(px float64, lv Level) {
	i := l.insertionPoint(px)
	if i < len(l.prices) && math.Abs(l.prices[i]-px) < priceEps {
		l.levels[i] = lv
		return
	}
	l.levels = append(l.levels, Level{})
	copy(l.levels[i+1:], l.levels[i:])
	l.levels[i] = lv
	l.prices = append(l.prices, 0)
	copy(l.prices[i+1:], l.prices[i:])
	l.prices[i] = px
}

func (l *Ladder) remove(px float64) {
	i := l.insertionPoint(px)
	if i >= len(l.prices) || math.Abs(l.prices[i]-px) >= priceEps {
		return
	}
	l.levels = append(l.levels[:i], l.levels[i+1:]...)
	l.prices = append(l.prices[:i], l.prices[i+1:]...)
}
