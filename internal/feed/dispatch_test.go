package feed

import (
	"testing"

	"go.uber.org/zap"

	"github.com/wirapratamaz/terminal-polyburg/internal/book"
	"github.com/wirapratamaz/terminal-polyburg/internal/bus"
)

func newTestDispatcher() (*Dispatcher, *book.Registry, *bus.Bus) {
	registry := book.NewRegistry()
	b := bus.New()
	return NewDispatcher(registry, b, zap.NewNop()), registry, b
}

func TestDispatcher_BookSnapshot(t *testing.T) {
	d, registry, b := newTestDispatcher()

	var books []book.State
	b.Subscribe(bus.TopicBook, func(event any) {
		books = append(books, event.(book.State))
	})

	d.DispatchFrame([]byte(`{
		"event_type": "book",
		"market": "0xcond",
		"asset_id": "token-1",
		"bids": [{"price":"0.45","size":"100"},{"price":"0.40","size":"50"}],
		"asks": [{"price":"0.52","size":"80"}],
		"timestamp": "1700000000123"
	}`))

	if len(books) != 1 {
		t.Fatalf("book events: want 1, got %d", len(books))
	}
	state := books[0]
	if state.AssetID != "token-1" || state.InstrumentID != "0xcond" {
		t.Fatalf("identifiers: got %s/%s", state.AssetID, state.InstrumentID)
	}
	if state.Bids[0].Price != "0.45" || state.Asks[0].Price != "0.52" {
		t.Fatalf("ladder content: %v / %v", state.Bids, state.Asks)
	}
	if state.UpdatedAt != 1700000000123 {
		t.Fatalf("timestamp: got %d", state.UpdatedAt)
	}
	if registry.Len() != 1 {
		t.Fatalf("registry books: want 1, got %d", registry.Len())
	}
}

// A batched frame with one well-formed snapshot and one unrecognizable
// object yields exactly one book event; the junk is dropped without any
// panic escaping the dispatch call.
func TestDispatcher_BatchWithMalformedMessage(t *testing.T) {
	d, _, b := newTestDispatcher()

	var books int
	b.Subscribe(bus.TopicBook, func(any) { books++ })

	d.DispatchFrame([]byte(`[
		{"event_type":"book","asset_id":"token-1","market":"0xcond","bids":[{"price":"0.45","size":"100"}],"asks":[],"timestamp":"1"},
		{"mystery":"payload"}
	]`))

	if books != 1 {
		t.Fatalf("book events: want exactly 1, got %d", books)
	}
}

func TestDispatcher_MalformedJSONDoesNotPanic(t *testing.T) {
	d, _, _ := newTestDispatcher()

	d.DispatchFrame([]byte(`{broken`))
	d.DispatchFrame([]byte(`[{"event_type":"book"`))
	d.DispatchFrame([]byte(``))
}

func TestDispatcher_PriceChange(t *testing.T) {
	d, registry, b := newTestDispatcher()

	var deltas []PriceChange
	b.Subscribe(bus.TopicPriceChange, func(event any) {
		deltas = append(deltas, event.(PriceChange))
	})
	var books int
	b.Subscribe(bus.TopicBook, func(any) { books++ })

	d.DispatchFrame([]byte(`{
		"event_type": "price_change",
		"market": "0xcond",
		"asset_id": "token-1",
		"price": "0.45",
		"size": "100",
		"side": "BUY",
		"timestamp": 2000
	}`))

	if len(deltas) != 1 || deltas[0].Price != "0.45" || deltas[0].Side != "BUY" {
		t.Fatalf("price change events: %v", deltas)
	}
	if books != 1 {
		t.Fatalf("book events after delta: want 1, got %d", books)
	}
	bk, ok := registry.Get("token-1")
	if !ok {
		t.Fatal("delta should create the book on first reference")
	}
	if bid, ok := bk.State().BestBid(); !ok || bid.Price != "0.45" {
		t.Fatalf("best bid: %v", bk.State().Bids)
	}
}

func TestDispatcher_MalformedDeltaDropped(t *testing.T) {
	d, registry, b := newTestDispatcher()

	var books int
	b.Subscribe(bus.TopicBook, func(any) { books++ })

	d.DispatchFrame([]byte(`{"event_type":"price_change","asset_id":"token-1","price":"junk","size":"1","side":"BUY"}`))
	d.DispatchFrame([]byte(`{"event_type":"price_change","asset_id":"token-1","price":"0.5","size":"1","side":"DIAGONAL"}`))

	if books != 0 {
		t.Fatalf("malformed deltas must not emit book events, got %d", books)
	}
	if bk, ok := registry.Get("token-1"); ok && bk.State().UpdatedAt != 0 {
		t.Fatal("malformed delta advanced book state")
	}
}

func TestDispatcher_Trade(t *testing.T) {
	d, registry, b := newTestDispatcher()

	registry.GetOrCreate("token-1", "0xcond")

	var trades []Trade
	b.Subscribe(bus.TopicTrade, func(event any) {
		trades = append(trades, event.(Trade))
	})

	d.DispatchFrame([]byte(`{
		"event_type": "last_trade_price",
		"asset_id": "token-1",
		"price": "0.47",
		"size": "25",
		"side": "SELL",
		"timestamp": 3000
	}`))

	if len(trades) != 1 || trades[0].Price != "0.47" || trades[0].Size != "25" {
		t.Fatalf("trade events: %v", trades)
	}
	bk, _ := registry.Get("token-1")
	state := bk.State()
	if state.LastTradePrice != "0.47" || state.LastTradeSide != "SELL" {
		t.Fatalf("trade tape: %s/%s", state.LastTradePrice, state.LastTradeSide)
	}
}

func TestDispatcher_ErrorAndUnauthorized(t *testing.T) {
	d, _, b := newTestDispatcher()

	var errs []bus.ErrorEvent
	b.Subscribe(bus.TopicError, func(event any) {
		errs = append(errs, event.(bus.ErrorEvent))
	})
	var demoted int
	d.onUnauthorized = func() { demoted++ }

	d.DispatchFrame([]byte(`{"event_type":"error","code":400,"message":"bad subscription"}`))
	if demoted != 0 {
		t.Fatal("plain errors must not demote the session")
	}

	d.DispatchFrame([]byte(`{"event_type":"error","code":401,"message":"Unauthorized"}`))
	if demoted != 1 {
		t.Fatalf("unauthorized demotions: want 1, got %d", demoted)
	}
	if len(errs) != 2 || errs[0].Code != "400" || errs[1].Code != "401" {
		t.Fatalf("error events: %v", errs)
	}
}

func TestDispatcher_ControlAndUnknown(t *testing.T) {
	d, registry, b := newTestDispatcher()

	var statuses []Status
	b.Subscribe(bus.TopicStatus, func(event any) {
		statuses = append(statuses, event.(Status))
	})

	d.DispatchFrame([]byte(`{"type":"subscribed","message":"ok"}`))
	d.DispatchFrame([]byte(`{"type":"pong"}`))
	d.DispatchFrame([]byte(`{"type":"gateway_status","message":"connected"}`))
	d.DispatchFrame([]byte(`{"whatever":42}`))

	if len(statuses) != 3 {
		t.Fatalf("status events: want 3, got %d", len(statuses))
	}
	if registry.Len() != 0 {
		t.Fatal("control frames must not touch the registry")
	}
}

// The variants disagree on discriminant field names; the same semantic event
// must classify identically under each spelling.
func TestDispatcher_VariantFieldNames(t *testing.T) {
	d, _, b := newTestDispatcher()

	var trades int
	b.Subscribe(bus.TopicTrade, func(any) { trades++ })

	d.DispatchFrame([]byte(`{"event_type":"last_trade_price","asset_id":"t","price":"0.5","side":"BUY"}`))
	d.DispatchFrame([]byte(`{"event":"ticker","asset_id":"t","price":"0.5","side":"BUY"}`))
	d.DispatchFrame([]byte(`{"type":"trade","asset_id":"t","price":"0.5","side":"BUY"}`))

	if trades != 3 {
		t.Fatalf("trade events: want 3, got %d", trades)
	}
}
