// Package dispatch runs the delivery pipeline: it turns accepted triggers
// into planned instances and executes individual steps when their time
// comes. The trigger path is synchronous and fast; step execution happens
// later on queue workers.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sequencer_backend/internal/events"
	"sequencer_backend/internal/segment"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/platform/apperr"
	"sequencer_backend/platform/config"
	"sequencer_backend/platform/logger"
)

// AnchorStatusSent and AnchorStatusFailed describe the frontend's outcome
// for the first step of a FirstStepExternal sequence. Sent is the default:
// the frontend normally fires the trigger right after its own send.
const (
	AnchorStatusSent   = "sent"
	AnchorStatusFailed = "failed"
)

// StepScheduler hands a planned step to the delayed queue.
type StepScheduler interface {
	ScheduleStep(ctx context.Context, instanceID uuid.UUID, position int, fireAt time.Time) error
}

// Config is the slice of application config the dispatch pipeline reads.
type Config interface {
	config.SequenceConfig
	config.DispatchConfig
	config.EmailConfig
}

// Trigger is the typed form of an assessment trigger, mapped from the wire
// payload at the HTTP boundary.
type Trigger struct {
	RecipientKey string
	Email        string
	DisplayName  string
	OrgName      string
	Counters     segment.Counters
	SequenceType sequence.Type
	Mode         sequence.Mode
	AnchorAt     *time.Time
	AnchorStatus string
}

// Result reports what a trigger did. HTTP callers only surface the instance
// id; the rest feeds logs and the CLI.
type Result struct {
	InstanceID   uuid.UUID
	Segment      segment.Segment
	Resumed      bool
	PlannedSteps int
	Settled      bool
}

// Orchestrator drives the trigger path: validate, classify, plan, persist,
// enqueue. It never sends email itself.
type Orchestrator struct {
	store     state.Store
	catalog   *sequence.Catalog
	scheduler StepScheduler
	bus       events.Bus
	log       *logger.Logger
	cfg       Config
}

func NewOrchestrator(store state.Store, catalog *sequence.Catalog, scheduler StepScheduler, bus events.Bus, cfg Config, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		catalog:   catalog,
		scheduler: scheduler,
		bus:       bus,
		log:       log,
		cfg:       cfg,
	}
}

// Validate rejects malformed triggers before any side effect happens.
func (t Trigger) Validate(catalog *sequence.Catalog) error {
	if t.RecipientKey == "" {
		return apperr.Validation("recipient_key is required")
	}
	def, ok := catalog.Get(t.SequenceType)
	if !ok {
		return apperr.Validation(fmt.Sprintf("unknown sequence type %q", t.SequenceType))
	}
	if t.Mode != "" {
		if _, err := sequence.ParseMode(string(t.Mode)); err != nil {
			return apperr.Validation(err.Error())
		}
	}
	switch t.AnchorStatus {
	case "", AnchorStatusSent, AnchorStatusFailed:
	default:
		return apperr.Validation(fmt.Sprintf("anchor_status must be %q or %q", AnchorStatusSent, AnchorStatusFailed))
	}
	if t.AnchorStatus != "" && !def.FirstStepExternal {
		return apperr.Validation(fmt.Sprintf("anchor_status is only valid for sequences whose first step is sent externally, not %q", t.SequenceType))
	}
	return nil
}

// HandleTrigger runs the trigger pipeline. A duplicate trigger resumes the
// existing instance: steps already on file stay untouched and an instance
// with nothing left to send is a successful no-op.
func (o *Orchestrator) HandleTrigger(ctx context.Context, trig Trigger) (Result, error) {
	if err := trig.Validate(o.catalog); err != nil {
		return Result{}, err
	}
	def, _ := o.catalog.Get(trig.SequenceType)

	seg := segment.Classify(trig.Counters)

	mode := trig.Mode
	if mode == "" {
		parsed, err := sequence.ParseMode(o.cfg.GetDefaultMode())
		if err != nil {
			return Result{}, apperr.Wrap(apperr.KindInternal, "invalid default sequence mode", err)
		}
		mode = parsed
	}

	anchor := time.Now().UTC()
	if trig.AnchorAt != nil && !trig.AnchorAt.IsZero() {
		anchor = trig.AnchorAt.UTC()
	} else {
		o.log.Warn("trigger has no anchor time, substituting current time",
			"recipient_key", trig.RecipientKey,
			"sequence_type", string(trig.SequenceType),
		)
	}

	stateTimeout := o.cfg.GetStateWriteTimeout()

	var inst state.Instance
	var created bool
	err := callWithRetry(ctx, stateTimeout, func(c context.Context) error {
		var err error
		inst, created, err = o.store.GetOrCreate(c, state.CreateParams{
			RecipientKey: trig.RecipientKey,
			Email:        trig.Email,
			DisplayName:  trig.DisplayName,
			OrgName:      trig.OrgName,
			SequenceType: trig.SequenceType,
			Segment:      string(seg),
			Mode:         string(mode),
			Counters:     trig.Counters.Normalized(),
			AnchorAt:     anchor,
		})
		return err
	})
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindUnavailable, "sequence state store unavailable", err)
	}

	if !created {
		// The stored instance is authoritative for a resumed run.
		anchor = inst.AnchorAt
		mode = sequence.Mode(inst.Mode)
		seg = segment.Segment(inst.Segment)
		o.log.Info("duplicate trigger resumed existing instance",
			"recipient_key", trig.RecipientKey,
			"sequence_type", string(trig.SequenceType),
			"instance_id", inst.ID.String(),
		)
	}

	o.publish(ctx, events.TriggerAccepted{
		BaseEvent:    events.NewBaseEvent(),
		InstanceID:   inst.ID,
		RecipientKey: inst.RecipientKey,
		SequenceType: string(inst.SequenceType),
		Segment:      string(seg),
		Mode:         string(mode),
		Resumed:      !created,
	})

	skip := make(map[int]bool)
	if !created {
		sent, err := o.store.SentPositions(ctx, inst.ID)
		if err != nil {
			return Result{}, apperr.Wrap(apperr.KindUnavailable, "sequence state store unavailable", err)
		}
		skip = sent
	}
	if def.FirstStepExternal {
		// Position 1 belongs to the frontend, whatever its outcome was.
		skip[1] = true
	}

	plan, err := sequence.Plan(anchor, mode, def, skip)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to plan sequence steps", err)
	}

	inserts := make([]state.StepInsert, 0, len(plan)+1)
	if created && def.FirstStepExternal {
		inserts = append(inserts, o.frontendSeed(def, trig.AnchorStatus, anchor))
	}
	for _, s := range plan {
		inserts = append(inserts, state.StepInsert{
			Position:    s.Position,
			TemplateRef: s.TemplateRef,
			FireAt:      s.FireAt,
			Status:      state.StepPending,
		})
	}

	err = callWithRetry(ctx, stateTimeout, func(c context.Context) error {
		return o.store.InsertSteps(c, inst.ID, inserts)
	})
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindUnavailable, "sequence state store unavailable", err)
	}

	if len(plan) == 0 {
		settled := o.settle(ctx, inst)
		o.log.Info("trigger had nothing left to plan",
			"recipient_key", inst.RecipientKey,
			"sequence_type", string(inst.SequenceType),
			"instance_id", inst.ID.String(),
		)
		return Result{InstanceID: inst.ID, Segment: seg, Resumed: !created, Settled: settled}, nil
	}

	o.publish(ctx, events.SequencePlanned{
		BaseEvent:    events.NewBaseEvent(),
		InstanceID:   inst.ID,
		RecipientKey: inst.RecipientKey,
		SequenceType: string(inst.SequenceType),
		AnchorAt:     anchor,
		StepCount:    len(plan),
	})

	if created {
		o.enqueuePlan(ctx, inst.ID, plan)
	}

	return Result{
		InstanceID:   inst.ID,
		Segment:      seg,
		Resumed:      !created,
		PlannedSteps: len(plan),
	}, nil
}

// frontendSeed records the frontend's own position-1 outcome so the ledger
// is complete from the start. The engine never re-sends this step.
func (o *Orchestrator) frontendSeed(def sequence.Definition, anchorStatus string, anchor time.Time) state.StepInsert {
	first, _ := def.Step(1)

	seed := state.StepInsert{
		Position:    1,
		TemplateRef: first.TemplateRef,
		FireAt:      anchor,
		SentBy:      state.SentByFrontend,
	}
	if anchorStatus == AnchorStatusFailed {
		seed.Status = state.StepFailed
	} else {
		seed.Status = state.StepSent
		sentAt := anchor
		seed.SentAt = &sentAt
	}
	return seed
}

// enqueuePlan hands fresh steps to the delayed queue. An enqueue failure is
// not fatal: the row stays pending and the sweeper re-dispatches it once
// due.
func (o *Orchestrator) enqueuePlan(ctx context.Context, instanceID uuid.UUID, plan []sequence.ScheduledStep) {
	for _, s := range plan {
		if err := o.scheduler.ScheduleStep(ctx, instanceID, s.Position, s.FireAt); err != nil {
			o.log.DegradedMode("scheduler",
				fmt.Sprintf("enqueue of position %d failed, sweeper will re-dispatch", s.Position), err)
			continue
		}
		if err := o.store.MarkEnqueued(ctx, instanceID, s.Position); err != nil {
			o.log.DatabaseError("mark step enqueued", err)
		}
	}
}

func (o *Orchestrator) settle(ctx context.Context, inst state.Instance) bool {
	return settleAndAnnounce(ctx, o.store, o.bus, o.log, inst)
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	publish(ctx, o.bus, event)
}

// settleAndAnnounce transitions the instance to settled when every step is
// terminal, publishing the event on success. Shared by the trigger path and
// the step executor.
func settleAndAnnounce(ctx context.Context, store state.Store, bus events.Bus, log *logger.Logger, inst state.Instance) bool {
	settled, err := store.SettleIfComplete(ctx, inst.ID)
	if err != nil {
		log.DatabaseError("settle instance", err)
		return false
	}
	if settled {
		publish(ctx, bus, events.SequenceSettled{
			BaseEvent:    events.NewBaseEvent(),
			InstanceID:   inst.ID,
			RecipientKey: inst.RecipientKey,
			SequenceType: string(inst.SequenceType),
		})
	}
	return settled
}

func publish(ctx context.Context, bus events.Bus, event events.Event) {
	if bus == nil {
		return
	}
	bus.Publish(ctx, event)
}

// callWithRetry bounds fn with timeout and retries once on failure. Used for
// every external call on the dispatch path.
func callWithRetry(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}

		c, cancel := context.WithTimeout(ctx, timeout)
		err := fn(c)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}
