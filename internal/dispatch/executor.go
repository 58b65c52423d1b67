package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sequencer_backend/internal/archive"
	"sequencer_backend/internal/email"
	"sequencer_backend/internal/events"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/internal/template"
	"sequencer_backend/platform/logger"
)

// ErrStepNotReady signals that an earlier position has no recorded outcome
// yet. The queue treats it as transient and retries the task later; it is
// how strict step ordering survives out-of-order delivery.
var ErrStepNotReady = errors.New("earlier step outcome not yet recorded")

// TemplateResolver is the copy lookup the executor depends on.
type TemplateResolver interface {
	Resolve(ctx context.Context, seqType sequence.Type, position int) (template.Resolved, error)
}

// Executor delivers a single step: guards, copy resolution, rendering, the
// send itself and the write-back. It is invoked by queue workers and must
// be safe to run concurrently for different steps.
type Executor struct {
	store    state.Store
	resolver TemplateResolver
	sender   email.Sender
	archiver archive.Archiver
	bus      events.Bus
	log      *logger.Logger
	cfg      Config
}

func NewExecutor(store state.Store, resolver TemplateResolver, sender email.Sender, archiver archive.Archiver, bus events.Bus, cfg Config, log *logger.Logger) *Executor {
	return &Executor{
		store:    store,
		resolver: resolver,
		sender:   sender,
		archiver: archiver,
		bus:      bus,
		log:      log,
		cfg:      cfg,
	}
}

// ExecuteStep runs one step to a recorded outcome. The returned error is a
// retry signal only: every permanent outcome (sent, failed, skipped) is
// recorded and reported as nil so the queue does not re-run it. One email
// failing never cancels the steps after it.
func (e *Executor) ExecuteStep(ctx context.Context, instanceID uuid.UUID, position int) error {
	inst, err := e.store.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			e.log.Warn("step task references missing instance, dropping",
				"instance_id", instanceID.String(), "position", position)
			return nil
		}
		return err
	}
	log := e.log.WithRecipient(inst.RecipientKey)

	sent, err := e.store.IsAlreadySent(ctx, instanceID, position)
	if err != nil {
		return err
	}
	if sent {
		log.Debug("step already sent, nothing to do",
			"sequence_type", string(inst.SequenceType), "position", position)
		return nil
	}

	if position > 1 {
		unresolved, err := e.store.HasUnresolvedEarlier(ctx, instanceID, position)
		if err != nil {
			return err
		}
		if unresolved {
			log.Info("holding step until earlier outcome is recorded",
				"sequence_type", string(inst.SequenceType), "position", position)
			return fmt.Errorf("instance %s position %d: %w", instanceID, position, ErrStepNotReady)
		}
	}

	if err := e.store.MarkProcessing(ctx, instanceID, position); err != nil {
		log.DatabaseError("mark step processing", err)
	}

	resolved, err := e.resolver.Resolve(ctx, inst.SequenceType, position)
	if err != nil {
		// Both the store and the static table miss: the only hard
		// resolution error, and a permanent one.
		reason := err.Error()
		e.recordOutcome(ctx, log, state.AttemptParams{
			InstanceID: instanceID,
			Position:   position,
			Status:     state.StepFailed,
			LastError:  &reason,
		}, false)
		publish(ctx, e.bus, events.StepFailed{
			BaseEvent:    events.NewBaseEvent(),
			InstanceID:   instanceID,
			RecipientKey: inst.RecipientKey,
			SequenceType: string(inst.SequenceType),
			Position:     position,
			Reason:       reason,
		})
		log.StepOutcome(inst.RecipientKey, string(inst.SequenceType), position, string(state.StepFailed), "")
		settleAndAnnounce(ctx, e.store, e.bus, log, inst)
		return nil
	}

	vars := Variables(inst, e.cfg.GetBookingURL(), e.cfg.GetEmailFromName())
	subject := template.Render(resolved.Subject, vars)
	body := template.Render(resolved.Body, vars)
	if strays := template.Strays(subject + "\n" + body); len(strays) > 0 {
		log.Debug("rendered step copy has unresolved placeholders",
			"sequence_type", string(inst.SequenceType), "position", position, "placeholders", strays)
	}

	// Suppression check as close to the send as possible: an operator
	// archiving the sequence must stop anything not yet on the wire.
	archived, err := e.store.IsArchived(ctx, instanceID)
	if err != nil {
		return err
	}
	if archived {
		reason := "instance archived"
		e.recordOutcome(ctx, log, state.AttemptParams{
			InstanceID: instanceID,
			Position:   position,
			Status:     state.StepSkipped,
			LastError:  &reason,
		}, false)
		publish(ctx, e.bus, events.StepSkipped{
			BaseEvent:    events.NewBaseEvent(),
			InstanceID:   instanceID,
			RecipientKey: inst.RecipientKey,
			SequenceType: string(inst.SequenceType),
			Position:     position,
			Reason:       reason,
		})
		log.StepOutcome(inst.RecipientKey, string(inst.SequenceType), position, string(state.StepSkipped), "")
		return nil
	}

	to := inst.Email
	if to == "" {
		// Recipient keys are addresses for callers that never supplied a
		// separate email field.
		to = inst.RecipientKey
	}

	var messageID string
	err = callWithRetry(ctx, e.cfg.GetSendTimeout(), func(c context.Context) error {
		var sendErr error
		messageID, sendErr = e.sender.Send(c, email.Message{
			To:      to,
			ToName:  inst.DisplayName,
			Subject: subject,
			Body:    body,
		})
		return sendErr
	})
	if err != nil {
		reason := err.Error()
		e.recordOutcome(ctx, log, state.AttemptParams{
			InstanceID: instanceID,
			Position:   position,
			Status:     state.StepFailed,
			LastError:  &reason,
		}, false)
		publish(ctx, e.bus, events.StepFailed{
			BaseEvent:    events.NewBaseEvent(),
			InstanceID:   instanceID,
			RecipientKey: inst.RecipientKey,
			SequenceType: string(inst.SequenceType),
			Position:     position,
			Reason:       reason,
		})
		log.StepOutcome(inst.RecipientKey, string(inst.SequenceType), position, string(state.StepFailed), "")
		settleAndAnnounce(ctx, e.store, e.bus, log, inst)
		return nil
	}

	// The email is out. From here on nothing may undo or block it: the
	// write-back and the archive are best-effort.
	e.recordOutcome(ctx, log, state.AttemptParams{
		InstanceID: instanceID,
		Position:   position,
		Status:     state.StepSent,
		MessageID:  messageID,
		SentBy:     state.SentByEngine,
	}, true)

	e.archiveMessage(ctx, log, inst, position, messageID, subject, body, resolved.Source)

	publish(ctx, e.bus, events.StepSent{
		BaseEvent:      events.NewBaseEvent(),
		InstanceID:     instanceID,
		RecipientKey:   inst.RecipientKey,
		SequenceType:   string(inst.SequenceType),
		Position:       position,
		MessageID:      messageID,
		TemplateSource: string(resolved.Source),
	})
	log.StepOutcome(inst.RecipientKey, string(inst.SequenceType), position, string(state.StepSent), messageID)

	settleAndAnnounce(ctx, e.store, e.bus, log, inst)
	return nil
}

// recordOutcome writes an attempt with timeout and one retry. afterSend
// selects the degraded-mode path: the email is already delivered, so a
// write failure is warned about and journaled but never surfaces as an
// error.
func (e *Executor) recordOutcome(ctx context.Context, log *logger.Logger, p state.AttemptParams, afterSend bool) {
	err := callWithRetry(ctx, e.cfg.GetStateWriteTimeout(), func(c context.Context) error {
		return e.store.RecordAttempt(c, p)
	})
	if err == nil {
		return
	}

	if afterSend {
		log.DegradedMode("state_store",
			fmt.Sprintf("send succeeded but outcome write failed for position %d", p.Position), err)
		publish(ctx, e.bus, events.StateWriteDegraded{
			BaseEvent:  events.NewBaseEvent(),
			InstanceID: p.InstanceID,
			Position:   p.Position,
			Reason:     err.Error(),
		})
		return
	}
	log.DatabaseError("record step outcome", err)
}

func (e *Executor) archiveMessage(ctx context.Context, log *logger.Logger, inst state.Instance, position int, messageID, subject, body string, source template.Source) {
	if e.archiver == nil {
		return
	}

	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := e.archiver.ArchiveMessage(c, archive.Entry{
		RecipientKey:   inst.RecipientKey,
		SequenceType:   string(inst.SequenceType),
		Position:       position,
		MessageID:      messageID,
		Subject:        subject,
		Body:           body,
		Segment:        inst.Segment,
		TemplateSource: string(source),
		SentBy:         state.SentByEngine,
		SentAt:         time.Now().UTC(),
	})
	if err != nil {
		log.Warn("failed to archive sent message",
			"instance_id", inst.ID.String(), "position", position, "error", err.Error())
	}
}
