package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"sequencer_backend/internal/events"
	"sequencer_backend/platform/logger"
)

type captureStore struct {
	inserts []InsertParams
	err     error
}

func (s *captureStore) Insert(_ context.Context, p InsertParams) error {
	s.inserts = append(s.inserts, p)
	return s.err
}

func (s *captureStore) ListByRecipient(context.Context, string, int) ([]Record, error) {
	return nil, nil
}

func (s *captureStore) ListByInstance(context.Context, uuid.UUID, int) ([]Record, error) {
	return nil, nil
}

func TestHandleAppendsStepSentWithCoordinates(t *testing.T) {
	store := &captureStore{}
	m := New(store, logger.New("development"))
	instanceID := uuid.New()

	err := m.Handle(context.Background(), events.StepSent{
		BaseEvent:    events.NewBaseEvent(),
		InstanceID:   instanceID,
		RecipientKey: "lead-42",
		SequenceType: "five_day",
		Position:     3,
		MessageID:    "msg-1",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if len(store.inserts) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserts))
	}
	got := store.inserts[0]
	if got.EventName != "sequences.step.sent" {
		t.Fatalf("EventName = %q", got.EventName)
	}
	if got.RecipientKey != "lead-42" {
		t.Fatalf("RecipientKey = %q", got.RecipientKey)
	}
	if got.InstanceID == nil || *got.InstanceID != instanceID {
		t.Fatalf("InstanceID = %v, want %s", got.InstanceID, instanceID)
	}
	if got.Position == nil || *got.Position != 3 {
		t.Fatalf("Position = %v, want 3", got.Position)
	}
}

func TestHandleSwallowsStoreFailures(t *testing.T) {
	store := &captureStore{err: errors.New("connection reset")}
	m := New(store, logger.New("development"))

	err := m.Handle(context.Background(), events.TriggerAccepted{
		BaseEvent:    events.NewBaseEvent(),
		InstanceID:   uuid.New(),
		RecipientKey: "lead-42",
		SequenceType: "five_day",
	})
	if err != nil {
		t.Fatalf("Handle must not propagate store failures, got: %v", err)
	}
}

func TestHandleIgnoresUnknownEvents(t *testing.T) {
	store := &captureStore{}
	m := New(store, logger.New("development"))

	if err := m.Handle(context.Background(), unknownEvent{}); err != nil {
		t.Fatalf("Handle returned error for unknown event: %v", err)
	}
	if len(store.inserts) != 0 {
		t.Fatalf("unknown event was journaled")
	}
}

type unknownEvent struct{ events.BaseEvent }

func (unknownEvent) EventName() string { return "other.system.event" }

func TestHandleArchivedEventHasNoInstance(t *testing.T) {
	store := &captureStore{}
	m := New(store, logger.New("development"))

	err := m.Handle(context.Background(), events.SequenceArchived{
		BaseEvent:    events.NewBaseEvent(),
		RecipientKey: "lead-42",
		SequenceType: "five_day",
		Archived:     1,
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(store.inserts) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserts))
	}
	if store.inserts[0].InstanceID != nil {
		t.Fatalf("archive journal row should have no instance id")
	}
}
