package livefeed

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"sequencer_backend/internal/events"
	"sequencer_backend/platform/logger"
)

func TestHandleFansOutToEverySubscriber(t *testing.T) {
	hub := NewHub(logger.New("development"))
	a := &client{events: make(chan frame, 32)}
	b := &client{events: make(chan frame, 32)}
	hub.addClient(a)
	hub.addClient(b)

	instanceID := uuid.New()
	err := hub.Handle(context.Background(), events.StepSent{
		BaseEvent:    events.NewBaseEvent(),
		InstanceID:   instanceID,
		RecipientKey: "lead-42",
		SequenceType: "five_day",
		Position:     2,
		MessageID:    "msg-9",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	for _, cl := range []*client{a, b} {
		select {
		case f := <-cl.events:
			if f.name != "sequences.step.sent" {
				t.Fatalf("frame name = %q", f.name)
			}
			if !strings.Contains(f.data, instanceID.String()) {
				t.Fatalf("frame data missing instance id: %s", f.data)
			}
			if !strings.Contains(f.data, `"position":2`) {
				t.Fatalf("frame data missing position: %s", f.data)
			}
		default:
			t.Fatal("subscriber received no frame")
		}
	}
}

func TestHandleDropsFramesForSlowSubscriber(t *testing.T) {
	hub := NewHub(logger.New("development"))
	slow := &client{events: make(chan frame, 1)}
	hub.addClient(slow)
	slow.events <- frame{name: "stale", data: "{}"}

	// The buffer is full; Handle must not block.
	err := hub.Handle(context.Background(), events.SequenceSettled{
		BaseEvent:    events.NewBaseEvent(),
		InstanceID:   uuid.New(),
		RecipientKey: "lead-7",
		SequenceType: "five_day",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	f := <-slow.events
	if f.name != "stale" {
		t.Fatalf("expected the stale frame to survive, got %q", f.name)
	}
	select {
	case f := <-slow.events:
		t.Fatalf("unexpected extra frame %q", f.name)
	default:
	}
}

func TestCloseThenRemoveDoesNotPanic(t *testing.T) {
	hub := NewHub(logger.New("development"))
	cl := &client{events: make(chan frame, 32)}
	hub.addClient(cl)

	hub.Close()
	// The handler goroutine calls removeClient after it sees the closed
	// channel; that must be safe after Close already released the client.
	hub.removeClient(cl)

	if got := hub.subscriberCount(); got != 0 {
		t.Fatalf("subscriberCount = %d after Close", got)
	}
}
