package notify

import (
	"log/slog"
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub(slog.Default())

	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	h.Publish(Event{Entity: "chores", Action: "created", ID: "c-1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Entity != "chores" || e.ID != "c-1" {
				t.Errorf("subscriber %d got %+v", i, e)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	h := NewHub(slog.Default())

	_, cancel := h.Subscribe()
	if h.SubscriberCount() != 1 {
		t.Fatalf("count = %d, want 1", h.SubscriberCount())
	}
	cancel()
	if h.SubscriberCount() != 0 {
		t.Errorf("count = %d, want 0", h.SubscriberCount())
	}

	// Cancelling twice must not panic.
	cancel()
}

func TestFullBufferDoesNotBlock(t *testing.T) {
	h := NewHub(slog.Default())

	_, cancel := h.Subscribe()
	defer cancel()

	// Overflow the buffer; Publish must never block.
	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(Event{Entity: "rewards", Action: "updated"})
	}
}
