package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("room.", 10)
	defer unsub()

	b.Publish(Event{Kind: "room.message", Timestamp: time.Now(), Payload: "hi"})

	select {
	case evt := <-ch:
		if evt.Kind != "room.message" {
			t.Errorf("kind = %q, want room.message", evt.Kind)
		}
		if evt.Payload != "hi" {
			t.Errorf("payload = %v, want hi", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: "room.message", Timestamp: time.Now()})
	b.Publish(Event{Kind: "sync.failed", Timestamp: time.Now()})

	evt := <-ch
	if evt.Kind != "sync.failed" {
		t.Errorf("kind = %q, want sync.failed (room.* must be filtered)", evt.Kind)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected second event %q", extra.Kind)
	default:
	}
}

func TestFullSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("", 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Second publish would block forever on an unbuffered send.
		b.Publish(Event{Kind: "a"})
		b.Publish(Event{Kind: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("room.", 10)

	unsub()
	unsub() // second call is a no-op

	b.Publish(Event{Kind: "room.message", Timestamp: time.Now()})

	select {
	case evt := <-ch:
		t.Errorf("got event %q after unsubscribe", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}
