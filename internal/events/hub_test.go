package events

import (
	"testing"
	"time"
)

func TestHubSessionFiltering(t *testing.T) {
	hub := NewHub()
	scoped := hub.Subscribe("s1")
	defer hub.Unsubscribe(scoped)
	all := hub.Subscribe("")
	defer hub.Unsubscribe(all)

	hub.Publish(Event{Type: TypeMessage, SessionID: "s1"})
	hub.Publish(Event{Type: TypeMessage, SessionID: "s2"})

	if got := drain(scoped.C); len(got) != 1 || got[0].SessionID != "s1" {
		t.Errorf("Scoped subscriber got %v, expected only s1", got)
	}
	if got := drain(all.C); len(got) != 2 {
		t.Errorf("Wildcard subscriber got %d events, expected 2", len(got))
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("s1")
	hub.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("Expected closed channel after Unsubscribe")
	}

	// Repeat unsubscribe must not panic on the closed channel.
	hub.Unsubscribe(sub)

	// Publishing after unsubscribe reaches no one.
	hub.Publish(Event{Type: TypeMessage, SessionID: "s1"})
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("s1")
	defer hub.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(Event{Type: TypeMessage, SessionID: "s1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// The buffer's worth got through; the overflow was dropped.
	if got := drain(sub.C); len(got) != subscriberBuffer {
		t.Errorf("Expected %d buffered events, got %d", subscriberBuffer, len(got))
	}
}

func TestHubStampsMissingTimestamp(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("")
	defer hub.Unsubscribe(sub)

	hub.Publish(Event{Type: TypeMessage, SessionID: "s1"})

	got := drain(sub.C)
	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Published event must carry a timestamp")
	}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		default:
			return out
		}
	}
}
