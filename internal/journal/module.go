package journal

import (
	"context"

	"github.com/google/uuid"

	"sequencer_backend/internal/events"
	"sequencer_backend/platform/logger"
)

// Module subscribes to every engine event and appends it to the journal.
type Module struct {
	store Store
	log   *logger.Logger
}

func New(store Store, log *logger.Logger) *Module {
	return &Module{store: store, log: log}
}

// RegisterHandlers subscribes the journal to all engine events.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.TriggerAccepted{}.EventName(), m)
	bus.Subscribe(events.SequencePlanned{}.EventName(), m)
	bus.Subscribe(events.StepSent{}.EventName(), m)
	bus.Subscribe(events.StepFailed{}.EventName(), m)
	bus.Subscribe(events.StepSkipped{}.EventName(), m)
	bus.Subscribe(events.StateWriteDegraded{}.EventName(), m)
	bus.Subscribe(events.SequenceSettled{}.EventName(), m)
	bus.Subscribe(events.SequenceArchived{}.EventName(), m)
}

// Handle appends the event. A failed append is logged and swallowed: the
// journal observes the pipeline, it must never stall it.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	p := InsertParams{
		EventName:  event.EventName(),
		Payload:    event,
		OccurredAt: event.OccurredAt(),
	}

	switch e := event.(type) {
	case events.TriggerAccepted:
		p.RecipientKey = e.RecipientKey
		p.InstanceID = ref(e.InstanceID)
	case events.SequencePlanned:
		p.RecipientKey = e.RecipientKey
		p.InstanceID = ref(e.InstanceID)
	case events.StepSent:
		p.RecipientKey = e.RecipientKey
		p.InstanceID = ref(e.InstanceID)
		p.Position = &e.Position
	case events.StepFailed:
		p.RecipientKey = e.RecipientKey
		p.InstanceID = ref(e.InstanceID)
		p.Position = &e.Position
	case events.StepSkipped:
		p.RecipientKey = e.RecipientKey
		p.InstanceID = ref(e.InstanceID)
		p.Position = &e.Position
	case events.StateWriteDegraded:
		p.InstanceID = ref(e.InstanceID)
		p.Position = &e.Position
	case events.SequenceSettled:
		p.RecipientKey = e.RecipientKey
		p.InstanceID = ref(e.InstanceID)
	case events.SequenceArchived:
		p.RecipientKey = e.RecipientKey
	default:
		return nil
	}

	if err := m.store.Insert(ctx, p); err != nil {
		m.log.DatabaseError("journal insert", err)
	}
	return nil
}

func ref(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
