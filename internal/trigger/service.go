package trigger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sequencer_backend/internal/dispatch"
	"sequencer_backend/internal/events"
	"sequencer_backend/internal/journal"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/platform/apperr"
	"sequencer_backend/platform/logger"
)

// Dispatcher runs the trigger pipeline. Satisfied by *dispatch.Orchestrator.
type Dispatcher interface {
	HandleTrigger(ctx context.Context, trig dispatch.Trigger) (dispatch.Result, error)
}

// Service backs the trigger ingress and the operator surface.
type Service struct {
	dispatcher   Dispatcher
	store        state.Store
	journalStore journal.Store
	catalog      *sequence.Catalog
	eventBus     events.Bus
	log          *logger.Logger
}

// NewService creates a new trigger service.
func NewService(dispatcher Dispatcher, store state.Store, journalStore journal.Store, catalog *sequence.Catalog, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		dispatcher:   dispatcher,
		store:        store,
		journalStore: journalStore,
		catalog:      catalog,
		eventBus:     eventBus,
		log:          log,
	}
}

// Trigger hands an accepted wire payload to the dispatch pipeline.
func (s *Service) Trigger(ctx context.Context, trig dispatch.Trigger) (dispatch.Result, error) {
	return s.dispatcher.HandleTrigger(ctx, trig)
}

// Instances returns every instance of a recipient, archived included.
func (s *Service) Instances(ctx context.Context, recipientKey string) ([]state.Instance, error) {
	return s.store.ListByRecipient(ctx, recipientKey)
}

// InstanceDetail returns one instance with its full step ledger.
func (s *Service) InstanceDetail(ctx context.Context, instanceID uuid.UUID) (state.Instance, []state.StepRecord, error) {
	inst, err := s.store.Get(ctx, instanceID)
	if err != nil {
		return state.Instance{}, nil, err
	}
	steps, err := s.store.Steps(ctx, instanceID)
	if err != nil {
		return state.Instance{}, nil, err
	}
	return inst, steps, nil
}

// Archive retires the non-archived instance of (recipient, sequence type).
// Pending steps of an archived instance are skipped at execution time, so
// archiving alone is enough to stop a sequence.
func (s *Service) Archive(ctx context.Context, recipientKey string, seqType string) (int, error) {
	if recipientKey == "" {
		return 0, apperr.Validation("recipient_key is required")
	}
	parsed := sequence.Type(seqType)
	if _, ok := s.catalog.Get(parsed); !ok {
		return 0, apperr.Validation(fmt.Sprintf("unknown sequence type %q", seqType))
	}

	archived, err := s.store.Archive(ctx, recipientKey, parsed)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUnavailable, "sequence state store unavailable", err)
	}

	if archived > 0 {
		s.log.Info("archived sequence instances",
			"recipient_key", recipientKey,
			"sequence_type", seqType,
			"archived", archived,
		)
		if s.eventBus != nil {
			s.eventBus.Publish(ctx, events.SequenceArchived{
				BaseEvent:    events.NewBaseEvent(),
				RecipientKey: recipientKey,
				SequenceType: seqType,
				Archived:     archived,
			})
		}
	}
	return archived, nil
}

// JournalByInstance returns the journal rows of one instance, newest first.
func (s *Service) JournalByInstance(ctx context.Context, instanceID uuid.UUID, limit int) ([]journal.Record, error) {
	return s.journalStore.ListByInstance(ctx, instanceID, limit)
}

// JournalByRecipient returns the journal rows of a recipient, newest first.
func (s *Service) JournalByRecipient(ctx context.Context, recipientKey string, limit int) ([]journal.Record, error) {
	return s.journalStore.ListByRecipient(ctx, recipientKey, limit)
}
