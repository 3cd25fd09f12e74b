package feed

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState is the lifecycle state of a feed session.
type ConnState int32

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateReady
	StateReconnecting
	StateClosing
	// StateFailed is terminal: the reconnect attempt ceiling was exhausted
	// and no further automatic retries will be made.
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnEventKind classifies connection lifecycle notifications.
type ConnEventKind int

const (
	// ConnUp fires on every transition into Ready, including after a
	// reconnect. Subscription replay hangs off this event.
	ConnUp ConnEventKind = iota
	// ConnDown fires when the transport drops and a reconnect is scheduled.
	ConnDown
	// ConnFailed fires exactly once, when the attempt ceiling is exhausted.
	ConnFailed
)

// ConnEvent is delivered on the Events channel.
type ConnEvent struct {
	Kind    ConnEventKind
	Attempt int
	Err     error
}

// ConnConfig holds tunable parameters for a Conn.
type ConnConfig struct {
	URL string

	// BackoffBase scales the linear retry delay: attempt n waits n*BackoffBase.
	BackoffBase time.Duration
	// MaxAttempts is the reconnect ceiling before the terminal failed state.
	MaxAttempts int
	// HeartbeatInterval is the outbound ping period. Zero disables
	// heartbeats and the derived read deadline.
	HeartbeatInterval time.Duration

	// Headers sent during the WebSocket handshake.
	Headers http.Header
}

// Conn owns exactly one transport session at a time: dialing, framing,
// heartbeats, and reconnection with linear backoff. Inbound frames and
// lifecycle events are exposed as channels so a single dispatch loop can
// consume both in order. Book state lives elsewhere and outlives any Conn.
type Conn struct {
	cfg ConnConfig
	log *zap.Logger

	state atomic.Int32

	mu sync.RWMutex
	ws *websocket.Conn

	frames chan []byte
	events chan ConnEvent
	outbox chan []byte

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	// onReconnect is called after each successful reconnection (testing hook).
	onReconnect func()
}

// NewConn creates a connection manager. Call Connect to start.
func NewConn(cfg ConnConfig, log *zap.Logger) *Conn {
	return &Conn{
		cfg:    cfg,
		log:    log,
		frames: make(chan []byte, 512),
		events: make(chan ConnEvent, 16),
		outbox: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Ready reports whether subscribe frames can be sent right now.
func (c *Conn) Ready() bool {
	return c.State() == StateReady
}

// Frames returns the channel of raw inbound transport frames.
func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

// Events returns the channel of lifecycle events.
func (c *Conn) Events() <-chan ConnEvent {
	return c.events
}

// Send enqueues a message for delivery. Messages queued while the session is
// down are dropped; subscription replay on ConnUp makes the desired state
// whole again.
func (c *Conn) Send(data []byte) {
	select {
	case c.outbox <- data:
	default:
		c.log.Warn("feed: outbox full, dropping message", zap.Int("bytes", len(data)))
	}
}

// Connect dials the endpoint and starts the read and write loops. It blocks
// until the initial connection succeeds or ctx is cancelled; an initial dial
// failure returns the error and leaves the Conn idle.
func (c *Conn) Connect(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.state.Store(int32(StateConnecting))
	if err := c.dial(ctx); err != nil {
		c.state.Store(int32(StateIdle))
		return err
	}
	c.state.Store(int32(StateReady))
	c.emit(ConnEvent{Kind: ConnUp})

	go c.readLoop(ctx)
	go c.writeLoop(ctx)

	return nil
}

// Close shuts down the session: the reconnect timer (if armed) is cancelled
// so a stale retry cannot resurrect the connection, the transport is closed,
// and both channels are closed once the loops exit.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Lock()
		if c.ws != nil {
			c.ws.Close()
		}
		c.mu.Unlock()
		c.state.Store(int32(StateIdle))
		close(c.done)
	})
}

// Done returns a channel closed when the Conn has fully shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Demote drops the session from Ready back to Open after the feed rejects
// authentication. Deferred subscriptions stay queued until the next
// transition into Ready re-sends auth.
func (c *Conn) Demote() {
	c.state.CompareAndSwap(int32(StateReady), int32(StateOpen))
}

// dial establishes the WebSocket connection with TCP_NODELAY enabled.
func (c *Conn) dial(ctx context.Context) error {
	c.mu.RLock()
	url := c.cfg.URL
	headers := c.cfg.Headers
	c.mu.RUnlock()

	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			return conn, nil
		},
	}

	ws, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	return nil
}

// reconnect retries the dial with linear backoff (attempt n waits
// n*BackoffBase) up to MaxAttempts. It returns false when the ceiling is
// exhausted or the context is cancelled; the ceiling additionally moves the
// Conn into the terminal failed state and emits ConnFailed exactly once.
func (c *Conn) reconnect(ctx context.Context) bool {
	c.state.Store(int32(StateReconnecting))

	for attempt := 1; ; attempt++ {
		if c.cfg.MaxAttempts > 0 && attempt > c.cfg.MaxAttempts {
			c.state.Store(int32(StateFailed))
			c.emit(ConnEvent{Kind: ConnFailed, Attempt: attempt - 1})
			c.log.Error("feed: max reconnect attempts reached",
				zap.Int("attempts", c.cfg.MaxAttempts))
			return false
		}

		delay := time.Duration(attempt) * c.cfg.BackoffBase
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		c.state.Store(int32(StateConnecting))
		if err := c.dial(ctx); err != nil {
			c.log.Warn("feed: reconnect failed",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
			c.state.Store(int32(StateReconnecting))
			continue
		}

		c.state.Store(int32(StateReady))
		c.emit(ConnEvent{Kind: ConnUp, Attempt: attempt})
		if c.onReconnect != nil {
			c.onReconnect()
		}
		return true
	}
}

// readLoop reads frames and pushes them to the frames channel. A read error
// or heartbeat silence triggers the reconnect path; the loop exits when the
// context is cancelled or the attempt ceiling is exhausted.
func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.frames)

	for {
		c.mu.RLock()
		ws := c.ws
		c.mu.RUnlock()

		if c.cfg.HeartbeatInterval > 0 {
			ws.SetReadDeadline(time.Now().Add(2 * c.cfg.HeartbeatInterval))
		}
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("feed: read error, scheduling reconnect", zap.Error(err))
			ws.Close()
			c.emit(ConnEvent{Kind: ConnDown, Err: err})
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		select {
		case c.frames <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop drains the outbox and sends heartbeat pings on the configured
// interval. Writes are skipped while the session is not ready.
func (c *Conn) writeLoop(ctx context.Context) {
	var heartbeat *time.Ticker
	var beat <-chan time.Time
	if c.cfg.HeartbeatInterval > 0 {
		heartbeat = time.NewTicker(c.cfg.HeartbeatInterval)
		beat = heartbeat.C
		defer heartbeat.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.outbox:
			if !c.Ready() {
				c.log.Debug("feed: dropping outbound frame, session not ready")
				continue
			}
			c.mu.RLock()
			ws := c.ws
			c.mu.RUnlock()
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("feed: write error", zap.Error(err))
			}
		case <-beat:
			if !c.Ready() {
				continue
			}
			c.mu.RLock()
			ws := c.ws
			c.mu.RUnlock()
			deadline := time.Now().Add(c.cfg.HeartbeatInterval / 2)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Warn("feed: ping error", zap.Error(err))
			}
		}
	}
}

// emit delivers a lifecycle event without blocking the transport loops.
func (c *Conn) emit(ev ConnEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("feed: events channel full, dropping event", zap.Int("kind", int(ev.Kind)))
	}
}
