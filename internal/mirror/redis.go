// Package mirror publishes synchronized book tops into Redis for
// out-of-process consumers. In-process book state itself is never persisted;
// the mirror is a live view, rebuilt from the feed after any restart.
package mirror

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wirapratamaz/terminal-polyburg/internal/book"
	"github.com/wirapratamaz/terminal-polyburg/internal/bus"
)

// RedisClient abstracts the Redis operations used by Writer. In production
// this is satisfied by Wrap(*redis.Client); in tests by a mock.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
}

type goRedis struct {
	c *redis.Client
}

func (g goRedis) HSet(ctx context.Context, key string, values ...any) error {
	return g.c.HSet(ctx, key, values...).Err()
}

// Wrap adapts a go-redis client to the RedisClient interface.
func Wrap(c *redis.Client) RedisClient {
	return goRedis{c: c}
}

// top holds the last-written best bid/ask for an asset so duplicate writes
// can be suppressed.
type top struct {
	Bid string
	Ask string
}

// Writer subscribes to book events on the bus and persists the best bid/ask
// per asset under:
//
//	Key:    book:{asset_id}
//	Fields: bid, ask, ts
//
// Writes are decoupled from the dispatch loop by an internal buffer so a
// slow Redis never stalls message processing.
type Writer struct {
	client RedisClient
	log    *zap.Logger

	buf  chan book.State
	last map[string]top

	token int
}

// NewWriter creates a Writer and registers it on the bus. Call Run to start
// flushing.
func NewWriter(client RedisClient, b *bus.Bus, log *zap.Logger) *Writer {
	w := &Writer{
		client: client,
		log:    log,
		buf:    make(chan book.State, 1024),
		last:   make(map[string]top),
	}
	w.token = b.Subscribe(bus.TopicBook, func(event any) {
		state, ok := event.(book.State)
		if !ok {
			return
		}
		select {
		case w.buf <- state:
		default:
			// Buffer full; the next book event carries fresher state anyway.
		}
	})
	return w
}

// Run flushes buffered book states to Redis until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-w.buf:
			w.write(ctx, state)
		}
	}
}

// write extracts the book top, suppresses duplicates, and issues an HSET.
func (w *Writer) write(ctx context.Context, state book.State) {
	var bid, ask string
	if lv, ok := state.BestBid(); ok {
		bid = lv.Price
	}
	if lv, ok := state.BestAsk(); ok {
		ask = lv.Price
	}

	prev, seen := w.last[state.AssetID]
	if seen && prev.Bid == bid && prev.Ask == ask {
		return
	}
	w.last[state.AssetID] = top{Bid: bid, Ask: ask}

	key := fmt.Sprintf("book:%s", state.AssetID)
	ts := strconv.FormatInt(state.UpdatedAt, 10)
	if err := w.client.HSet(ctx, key, "bid", bid, "ask", ask, "ts", ts); err != nil {
		w.log.Warn("mirror: redis write failed", zap.String("key", key), zap.Error(err))
	}
}
