package feed

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/wirapratamaz/terminal-polyburg/internal/book"
	"github.com/wirapratamaz/terminal-polyburg/internal/bus"
)

// Dispatcher classifies flattened inbound messages and routes them to the
// book registry and the event bus. Classification is ordered shape-sniffing:
// the dialects disagree on discriminant field names, so a strict
// single-field switch would misroute a share of real traffic.
type Dispatcher struct {
	registry *book.Registry
	bus      *bus.Bus
	log      *zap.Logger

	// onUnauthorized is invoked when the feed rejects authentication, so
	// the owning client can demote the session.
	onUnauthorized func()
}

// NewDispatcher wires a dispatcher to its registry and bus.
func NewDispatcher(registry *book.Registry, b *bus.Bus, log *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, bus: b, log: log}
}

// DispatchFrame flattens one transport frame (single object or batch array)
// and classifies each message. Malformed JSON is logged and dropped; no
// failure here ever terminates the connection.
func (d *Dispatcher) DispatchFrame(raw []byte) {
	msgs, err := flattenFrame(raw)
	if err != nil {
		d.log.Warn("feed: malformed frame dropped", zap.Error(err))
		return
	}
	for _, msg := range msgs {
		d.dispatch(msg)
	}
}

// dispatch applies the ordered classification policy to one message object.
func (d *Dispatcher) dispatch(raw json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.log.Warn("feed: unparsable message dropped", zap.Error(err))
		return
	}

	// Ladder-shaped content wins over any discriminant: every dialect's book
	// snapshot carries bids or asks, whatever it calls itself.
	if env.Bids != nil || env.Asks != nil {
		d.handleBook(&env)
		return
	}

	switch tag := env.tag(); tag {
	case "book":
		d.handleBook(&env)
	case "price_change":
		d.handlePriceChange(&env)
	case "last_trade_price", "ticker", "trade":
		d.handleTrade(&env)
	case "error":
		d.handleError(&env)
	case "subscription", "subscribed", "status", "pong", "heartbeat", "gateway_status":
		d.bus.Publish(bus.TopicStatus, Status{Type: tag, Message: env.Message})
	default:
		d.log.Debug("feed: unrecognized message dropped", zap.String("tag", tag))
	}
}

// handleBook applies full-replace snapshot semantics. A missing side array
// means an empty side, not an error.
func (d *Dispatcher) handleBook(env *envelope) {
	if env.AssetID == "" && env.Market == "" {
		d.log.Warn("feed: book message without identifiers dropped")
		return
	}
	key := env.AssetID
	if key == "" {
		key = env.Market
	}

	b := d.registry.GetOrCreate(key, env.Market)
	b.ApplyBookMessage(env.Bids, env.Asks, int64(env.Timestamp))
	d.bus.Publish(bus.TopicBook, b.State())
}

func (d *Dispatcher) handlePriceChange(env *envelope) {
	side, err := book.ParseSide(env.Side)
	if err != nil {
		d.log.Warn("feed: price change with bad side dropped",
			zap.String("side", env.Side), zap.String("asset", env.AssetID))
		return
	}

	b := d.registry.GetOrCreate(env.AssetID, env.Market)
	if err := b.ApplyPriceChange(side, env.Price, env.Size, int64(env.Timestamp)); err != nil {
		d.log.Warn("feed: malformed price change dropped",
			zap.String("asset", env.AssetID), zap.Error(err))
		return
	}

	d.bus.Publish(bus.TopicPriceChange, PriceChange{
		InstrumentID: env.Market,
		AssetID:      env.AssetID,
		Price:        env.Price,
		Size:         env.Size,
		Side:         env.Side,
		Timestamp:    int64(env.Timestamp),
	})
	d.bus.Publish(bus.TopicBook, b.State())
}

func (d *Dispatcher) handleTrade(env *envelope) {
	if b, ok := d.registry.Get(env.AssetID); ok {
		b.ApplyTrade(env.Price, env.Side, int64(env.Timestamp))
	}
	d.bus.Publish(bus.TopicTrade, Trade{
		InstrumentID: env.Market,
		AssetID:      env.AssetID,
		Price:        env.Price,
		Size:         env.Size,
		Side:         env.Side,
		Timestamp:    int64(env.Timestamp),
	})
}

// handleError surfaces server error frames. Unauthorized errors additionally
// demote the session so the next transition into Ready re-sends auth.
func (d *Dispatcher) handleError(env *envelope) {
	code := string(env.Code)
	d.bus.Publish(bus.TopicError, bus.ErrorEvent{Code: code, Message: env.Message})

	if code == "401" || strings.Contains(strings.ToLower(env.Message), "unauthorized") {
		d.log.Warn("feed: authentication rejected", zap.String("message", env.Message))
		if d.onUnauthorized != nil {
			d.onUnauthorized()
		}
	}
}
