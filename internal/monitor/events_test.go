package monitor

import (
	"strings"
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	eb := NewEventBus(10)
	defer eb.Shutdown()

	a := eb.Subscribe()
	b := eb.Subscribe()

	eb.Publish(Event{Type: EventRunIngested, RunID: "r1"})

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.RunID != "r1" {
				t.Errorf("RunID = %q, want r1", ev.RunID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	eb := NewEventBus(10)
	defer eb.Shutdown()

	ch := eb.Subscribe()
	eb.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// A second unsubscribe is a no-op.
	eb.Unsubscribe(ch)
}

func TestEventBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	eb := NewEventBus(100)
	defer eb.Shutdown()

	slow := eb.Subscribe()
	fast := eb.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			eb.Publish(Event{Type: EventRunIngested})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber got nothing")
	}
	_ = slow
}

func TestEventBus_ShutdownClosesSubscribers(t *testing.T) {
	eb := NewEventBus(10)
	ch := eb.Subscribe()

	eb.Shutdown()
	eb.Shutdown()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed on shutdown")
	}

	// Publishing after shutdown must not panic.
	eb.Publish(Event{Type: EventRunIngested})
}

func TestFormatSSEEvent(t *testing.T) {
	out, err := FormatSSEEvent(Event{Type: EventRunIngested, RunID: "abc"})
	if err != nil {
		t.Fatalf("FormatSSEEvent error: %v", err)
	}
	if !strings.HasPrefix(out, "event: run_ingested\ndata: {") {
		t.Errorf("unexpected prefix: %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Errorf("missing terminator: %q", out)
	}
	if !strings.Contains(out, `"run_id":"abc"`) {
		t.Errorf("missing run id: %q", out)
	}
}
