package stream

import (
	"testing"

	"github.com/linnemanlabs/aegis/internal/logentry"
)

func TestPublish_ReachesSubscribers(t *testing.T) {
	t.Parallel()

	h := NewHub()
	ch1, cancel1 := h.Subscribe()
	defer cancel1()
	ch2, cancel2 := h.Subscribe()
	defer cancel2()

	le := &logentry.LogEntry{ID: "l1", RawText: "hello"}
	h.Publish(le)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != EventNewLog {
				t.Errorf("subscriber %d: type = %q, want %q", i, ev.Type, EventNewLog)
			}
			if ev.Log.ID != "l1" {
				t.Errorf("subscriber %d: log id = %q", i, ev.Log.ID)
			}
		default:
			t.Errorf("subscriber %d: no event delivered", i)
		}
	}
}

func TestPublish_DropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	// Publish must never block, even past the buffer.
	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(&logentry.LogEntry{ID: "l"})
	}

	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered events = %d, want %d (overflow dropped)", got, subscriberBuffer)
	}
}

func TestCancel_RemovesSubscriberAndClosesChannel(t *testing.T) {
	t.Parallel()

	h := NewHub()
	ch, cancel := h.Subscribe()

	if h.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", h.Subscribers())
	}

	cancel()
	cancel() // idempotent

	if h.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", h.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	h.Publish(&logentry.LogEntry{ID: "l"})
}
