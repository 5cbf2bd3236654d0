package events

import (
	"testing"
	"time"
)

func TestBus_PublishDelivers(t *testing.T) {
	b := New()
	sub := b.Subscribe(4)
	defer b.Unsubscribe(sub)

	b.Emit(SourceAgent, KindTurnStart, map[string]any{"user_id": "u1"})

	select {
	case ev := <-sub:
		if ev.Source != SourceAgent || ev.Kind != KindTurnStart {
			t.Errorf("event = %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
		if ev.Data["user_id"] != "u1" {
			t.Errorf("data = %v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBus_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Emit(SourceAPI, KindToolCall, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Exactly the buffered event survives.
	if n := len(sub); n != 1 {
		t.Errorf("buffered events = %d, want 1", n)
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	b := New()
	a := b.Subscribe(4)
	c := b.Subscribe(4)
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(c)

	b.Emit(SourceTrigger, KindTriggerFired, nil)

	for _, sub := range []<-chan Event{a, c} {
		select {
		case <-sub:
		case <-time.After(time.Second):
			t.Fatal("subscriber missed broadcast")
		}
	}
}

func TestBus_NilSafe(t *testing.T) {
	var b *Bus
	// Must not panic.
	b.Emit(SourceAgent, KindTurnComplete, nil)
	b.Publish(Event{})
}

func TestBus_UnsubscribeTwice(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	// Publishing after unsubscribe must not panic on the closed channel.
	b.Emit(SourceAgent, KindTurnStart, nil)
}
