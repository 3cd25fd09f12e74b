package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wirapratamaz/terminal-polyburg/internal/book"
	"github.com/wirapratamaz/terminal-polyburg/internal/bus"
)

type hsetCall struct {
	key    string
	values []any
}

type mockRedis struct {
	mu    sync.Mutex
	calls []hsetCall
}

func (m *mockRedis) HSet(ctx context.Context, key string, values ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, hsetCall{key: key, values: values})
	return nil
}

func (m *mockRedis) snapshot() []hsetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hsetCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func waitCalls(t *testing.T, m *mockRedis, n int) []hsetCall {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		calls := m.snapshot()
		if len(calls) >= n {
			return calls
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d redis writes, have %d", n, len(calls))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func bookState(assetID, bid, ask string, ts int64) book.State {
	s := book.State{AssetID: assetID, UpdatedAt: ts}
	if bid != "" {
		s.Bids = []book.Level{{Price: bid, Size: "10"}}
	}
	if ask != "" {
		s.Asks = []book.Level{{Price: ask, Size: "10"}}
	}
	return s
}

func TestWriter_PersistsBookTop(t *testing.T) {
	b := bus.New()
	m := &mockRedis{}
	w := NewWriter(m, b, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	b.Publish(bus.TopicBook, bookState("tok-1", "0.45", "0.52", 1700000000123))

	calls := waitCalls(t, m, 1)
	if calls[0].key != "book:tok-1" {
		t.Fatalf("key: got %s", calls[0].key)
	}
	want := []any{"bid", "0.45", "ask", "0.52", "ts", "1700000000123"}
	if len(calls[0].values) != len(want) {
		t.Fatalf("values: got %v", calls[0].values)
	}
	for i, v := range want {
		if calls[0].values[i] != v {
			t.Fatalf("values[%d]: got %v, want %v", i, calls[0].values[i], v)
		}
	}
}

func TestWriter_SuppressesDuplicateTops(t *testing.T) {
	b := bus.New()
	m := &mockRedis{}
	w := NewWriter(m, b, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Same top twice, then a changed top.
	b.Publish(bus.TopicBook, bookState("tok-1", "0.45", "0.52", 1))
	b.Publish(bus.TopicBook, bookState("tok-1", "0.45", "0.52", 2))
	b.Publish(bus.TopicBook, bookState("tok-1", "0.46", "0.52", 3))

	calls := waitCalls(t, m, 2)
	time.Sleep(50 * time.Millisecond)
	calls = m.snapshot()
	if len(calls) != 2 {
		t.Fatalf("writes: want 2, got %d", len(calls))
	}
	if calls[1].values[1] != "0.46" {
		t.Fatalf("second write bid: got %v", calls[1].values[1])
	}
}

func TestWriter_EmptySidesWriteEmptyFields(t *testing.T) {
	b := bus.New()
	m := &mockRedis{}
	w := NewWriter(m, b, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	b.Publish(bus.TopicBook, bookState("tok-1", "", "0.52", 1))

	calls := waitCalls(t, m, 1)
	if calls[0].values[1] != "" || calls[0].values[3] != "0.52" {
		t.Fatalf("values: got %v", calls[0].values)
	}
}

func TestWriter_IgnoresForeignPayloads(t *testing.T) {
	b := bus.New()
	m := &mockRedis{}
	w := NewWriter(m, b, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	b.Publish(bus.TopicBook, "not a book state")
	b.Publish(bus.TopicBook, bookState("tok-1", "0.45", "0.52", 1))

	calls := waitCalls(t, m, 1)
	if len(calls) != 1 || calls[0].key != "book:tok-1" {
		t.Fatalf("calls: %v", calls)
	}
}
