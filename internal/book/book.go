package book

import "sync"

// State is an immutable snapshot of one book, safe to hand to consumers.
type State struct {
	InstrumentID   string
	AssetID        string
	Bids           []Level // descending by price
	Asks           []Level // ascending by price
	UpdatedAt      int64   // epoch milliseconds, monotonically non-decreasing
	LastTradePrice string
	LastTradeSide  string
}

// BestBid returns the top bid level, or false if the bid side is empty.
func (s State) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level, or false if the ask side is empty.
func (s State) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

// Book couples the bid and ask ladders for one instrument outcome, plus
// last-trade metadata. All mutation goes through the dispatch loop; reads
// copy out under the lock so consumers never observe a torn write.
type Book struct {
	mu           sync.RWMutex
	instrumentID string
	assetID      string
	bids         *Ladder
	asks         *Ladder
	updatedAt    int64
	tradePrice   string
	tradeSide    string
}

// New returns an empty book for the given instrument and feed asset.
func New(instrumentID, assetID string) *Book {
	return &Book{
		instrumentID: instrumentID,
		assetID:      assetID,
		bids:         NewLadder(Bid),
		asks:         NewLadder(Ask),
	}
}

// SetInstrumentID backfills the market identifier when the first message that
// carried it arrives after book creation.
func (b *Book) SetInstrumentID(id string) {
	b.mu.Lock()
	if id != "" {
		b.instrumentID = id
	}
	b.mu.Unlock()
}

// ApplyBookMessage replaces both sides with a full snapshot. A missing side
// is an empty side, not an error.
func (b *Book) ApplyBookMessage(bids, asks []Level, ts int64) {
	b.mu.Lock()
	b.bids.ApplySnapshot(bids)
	b.asks.ApplySnapshot(asks)
	b.clampTimestamp(ts)
	b.mu.Unlock()
}

// ApplyPriceChange applies a single level delta to the given side. Malformed
// price or size strings leave the ladders untouched and are reported to the
// caller, which logs and drops the delta.
func (b *Book) ApplyPriceChange(side Side, price, size string, ts int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ladder := b.bids
	if side == Ask {
		ladder = b.asks
	}
	if err := ladder.ApplyDelta(price, size); err != nil {
		return err
	}
	b.clampTimestamp(ts)
	return nil
}

// ApplyTrade records a trade print. Trade prints are informational and never
// mutate the ladders; the feed emits book deltas independently.
func (b *Book) ApplyTrade(price, side string, ts int64) {
	b.mu.Lock()
	b.tradePrice = price
	b.tradeSide = side
	b.clampTimestamp(ts)
	b.mu.Unlock()
}

// Spread returns best ask minus best bid, or false when either side is empty.
func (b *Book) Spread() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bid, okBid := b.bids.BestPrice()
	ask, okAsk := b.asks.BestPrice()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// State copies out the current book as an immutable snapshot.
func (b *Book) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return State{
		InstrumentID:   b.instrumentID,
		AssetID:        b.assetID,
		Bids:           b.bids.Levels(),
		Asks:           b.asks.Levels(),
		UpdatedAt:      b.updatedAt,
		LastTradePrice: b.tradePrice,
		LastTradeSide:  b.tradeSide,
	}
}

// clampTimestamp keeps the book timestamp monotonically non-decreasing. The
// feed documents no ordering guarantee, so older-stamped messages are still
// applied but can never rewind the clock. Callers hold b.mu.
func (b *Book) clampTimestamp(ts int64) {
	if ts > b.updatedAt {
		b.updatedAt = ts
	}
}
