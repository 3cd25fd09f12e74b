package bus

import (
	"testing"
)

func TestBus_DeliveryInRegistrationOrder(t *testing.T) {
	b := New()

	var order []string
	b.Subscribe(TopicBook, func(any) { order = append(order, "first") })
	b.Subscribe(TopicBook, func(any) { order = append(order, "second") })
	b.Subscribe(TopicBook, func(any) { order = append(order, "third") })

	b.Publish(TopicBook, struct{}{})

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("deliveries: want %d, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery order: want %v, got %v", want, order)
		}
	}
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	b := New()

	var got int
	b.Subscribe(TopicTrade, func(any) { got++ })

	b.Publish(TopicBook, struct{}{})
	b.Publish(TopicError, struct{}{})
	if got != 0 {
		t.Fatalf("handler received events from other topics: %d", got)
	}

	b.Publish(TopicTrade, struct{}{})
	if got != 1 {
		t.Fatalf("handler deliveries: want 1, got %d", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()

	var first, second int
	token := b.Subscribe(TopicConnected, func(any) { first++ })
	b.Subscribe(TopicConnected, func(any) { second++ })

	b.Publish(TopicConnected, true)
	b.Unsubscribe(TopicConnected, token)
	b.Publish(TopicConnected, false)

	if first != 1 {
		t.Fatalf("unsubscribed handler deliveries: want 1, got %d", first)
	}
	if second != 2 {
		t.Fatalf("remaining handler deliveries: want 2, got %d", second)
	}

	// Unknown tokens are a no-op.
	b.Unsubscribe(TopicConnected, 999)
}

func TestBus_PayloadPassedThrough(t *testing.T) {
	b := New()

	var got any
	b.Subscribe(TopicError, func(event any) { got = event })

	want := ErrorEvent{Code: "401", Message: "unauthorized"}
	b.Publish(TopicError, want)

	ev, ok := got.(ErrorEvent)
	if !ok || ev != want {
		t.Fatalf("payload: want %v, got %v", want, got)
	}
}
