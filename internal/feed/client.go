package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wirapratamaz/terminal-polyburg/internal/book"
	"github.com/wirapratamaz/terminal-polyburg/internal/bus"
)

// Config holds the tunable parameters for a Client. Zero values fall back to
// the selected variant's defaults.
type Config struct {
	URL         string
	Variant     Variant
	Credentials Credentials

	BackoffBase          time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
}

// Client is the explicitly constructed, owned entry point to the feed: it
// ties the connection state machine, the subscription manager, the message
// dispatcher, and the book registry together behind one dispatch loop.
// Lifecycle is construct, Connect, Disconnect; there is no process-wide
// instance. Connect after Disconnect opens a fresh session and replays the
// retained desired set; book state likewise survives until explicitly
// unsubscribed.
type Client struct {
	proto   Protocol
	creds   Credentials
	connCfg ConnConfig

	subs     *Subscriptions
	disp     *Dispatcher
	registry *book.Registry
	bus      *bus.Bus
	log      *zap.Logger

	// mu guards the per-session fields below; each Connect installs a fresh
	// Conn and done channel because a Conn's channels are single-use.
	mu     sync.Mutex
	conn   *Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient builds a client for the given variant. The bus receives every
// surfaced event; consumers subscribe there.
func NewClient(cfg Config, b *bus.Bus, log *zap.Logger) (*Client, error) {
	proto, err := ProtocolFor(cfg.Variant)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("feed: URL is required")
	}

	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = proto.DefaultBackoffBase
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = proto.DefaultMaxAttempts
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = proto.DefaultHeartbeat
	}

	registry := book.NewRegistry()
	c := &Client{
		proto: proto,
		creds: cfg.Credentials,
		connCfg: ConnConfig{
			URL:               cfg.URL,
			BackoffBase:       cfg.BackoffBase,
			MaxAttempts:       cfg.MaxReconnectAttempts,
			HeartbeatInterval: cfg.HeartbeatInterval,
		},
		subs:     NewSubscriptions(),
		registry: registry,
		bus:      b,
		log:      log,
	}
	c.disp = NewDispatcher(registry, b, log)
	c.disp.onUnauthorized = c.demote

	return c, nil
}

// Connect opens a fresh transport session and starts its dispatch loop. The
// initial subscription replay (if anything is already desired) happens on the
// first ConnUp event.
func (c *Client) Connect(ctx context.Context) error {
	conn := NewConn(c.connCfg, c.log)
	ctx, cancel := context.WithCancel(ctx)

	if err := conn.Connect(ctx); err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, conn, done)
	return nil
}

// Disconnect stops the dispatch loop and closes the transport. The desired
// subscription set is retained, so a later Connect replays it; book state is
// likewise retained until explicitly unsubscribed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn, cancel, done := c.conn, c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
}

// current returns the active session's Conn, or nil before the first Connect.
func (c *Client) current() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// demote drops the active session from Ready after an authentication
// rejection.
func (c *Client) demote() {
	if conn := c.current(); conn != nil {
		conn.Demote()
	}
}

// Subscribe adds asset IDs to the desired set. If the session is ready the
// subscribe frame is sent immediately; otherwise it is deferred to the next
// ConnUp replay.
func (c *Client) Subscribe(assetIDs ...string) {
	var added []string
	for _, id := range assetIDs {
		if c.subs.Add(id) {
			added = append(added, id)
		}
	}
	conn := c.current()
	if len(added) == 0 || conn == nil || !conn.Ready() {
		return
	}
	c.sendSubscribe(conn, added)
}

// Unsubscribe removes asset IDs from the desired set and tears down their
// accumulated book state. On dialects with an unsubscribe frame it is also
// sent upstream.
func (c *Client) Unsubscribe(assetIDs ...string) {
	var removed []string
	for _, id := range assetIDs {
		if c.subs.Remove(id) {
			removed = append(removed, id)
		}
		c.registry.Remove(id)
	}
	conn := c.current()
	if len(removed) == 0 || conn == nil || !conn.Ready() {
		return
	}
	if frame, ok := c.proto.UnsubscribeFrame(removed); ok {
		conn.Send(frame)
	}
}

// Prime seeds a book from a REST snapshot so consumers have a ladder before
// the first streamed message arrives. A later streamed snapshot supersedes it.
func (c *Client) Prime(assetID, instrumentID string, bids, asks []book.Level, ts int64) {
	b := c.registry.GetOrCreate(assetID, instrumentID)
	b.ApplyBookMessage(bids, asks, ts)
	c.bus.Publish(bus.TopicBook, b.State())
}

// Book returns the synchronized state for assetID, or false if no book
// exists. Read paths never fabricate state.
func (c *Client) Book(assetID string) (book.State, bool) {
	b, ok := c.registry.Get(assetID)
	if !ok {
		return book.State{}, false
	}
	return b.State(), true
}

// Spread returns best ask minus best bid for assetID, or false when the
// book is missing or either side is empty.
func (c *Client) Spread(assetID string) (float64, bool) {
	b, ok := c.registry.Get(assetID)
	if !ok {
		return 0, false
	}
	return b.Spread()
}

// Subscribed returns the desired asset IDs in subscription order.
func (c *Client) Subscribed() []string {
	return c.subs.Desired()
}

// ConnState returns the connection lifecycle state. Before the first Connect
// there is no session and the state is idle.
func (c *Client) ConnState() ConnState {
	conn := c.current()
	if conn == nil {
		return StateIdle
	}
	return conn.State()
}

// run is the dispatch loop for one session: that session's transport frames
// and lifecycle events are consumed here and nowhere else, so each message is
// fully reduced before the next and all shared state has one writer.
func (c *Client) run(ctx context.Context, conn *Conn, done chan struct{}) {
	defer close(done)

	frames := conn.Frames()
	events := conn.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			c.disp.DispatchFrame(raw)
		case ev := <-events:
			c.handleConnEvent(conn, ev)
		}
	}
}

func (c *Client) handleConnEvent(conn *Conn, ev ConnEvent) {
	switch ev.Kind {
	case ConnUp:
		c.replaySubscriptions(conn)
		c.bus.Publish(bus.TopicConnected, true)
	case ConnDown:
		c.bus.Publish(bus.TopicConnected, false)
	case ConnFailed:
		c.bus.Publish(bus.TopicMaxReconnect, true)
	}
}

// replaySubscriptions re-sends the full desired set. Runs on every
// transition into Ready, so a reconnect restores every live subscription
// without consumer involvement.
func (c *Client) replaySubscriptions(conn *Conn) {
	ids := c.subs.Desired()
	if len(ids) == 0 {
		return
	}
	c.sendSubscribe(conn, ids)
}

func (c *Client) sendSubscribe(conn *Conn, ids []string) {
	frame, err := c.subs.SubscribeFrame(c.proto, c.creds, ids)
	if err != nil {
		c.log.Warn("feed: subscription withheld", zap.Error(err))
		c.bus.Publish(bus.TopicError, bus.ErrorEvent{
			Code:    "missing_credentials",
			Message: err.Error(),
		})
		return
	}
	if frame != nil {
		conn.Send(frame)
	}
}
