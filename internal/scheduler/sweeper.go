package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"sequencer_backend/internal/dispatch"
	"sequencer_backend/internal/state"
	"sequencer_backend/platform/logger"
)

const (
	sweepInterval           = 30 * time.Second
	sweepBatchSize          = 100
	sweepEnqueueConcurrency = 8

	// reclaimAfter is how long an enqueued or processing step may sit past
	// its fire time without progress before the sweeper assumes the queue
	// lost it and resets it to pending.
	reclaimAfter = 10 * time.Minute
)

// Sweeper is the safety net under the delayed queue. Fresh steps are
// enqueued at plan time; the sweeper picks up everything else: steps of
// resumed instances, steps whose enqueue failed, and steps lost to a queue
// outage.
type Sweeper struct {
	scheduler dispatch.StepScheduler
	store     state.Store
	log       *logger.Logger
}

func NewSweeper(scheduler dispatch.StepScheduler, store state.Store, log *logger.Logger) *Sweeper {
	return &Sweeper{
		scheduler: scheduler,
		store:     store,
		log:       log,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.scheduler == nil || s.store == nil {
		return
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.SweepOnce(ctx)
	}
}

// SweepOnce runs a single sweep pass: reclaim stuck steps, claim everything
// due, and hand the claims to the queue. Also called directly by the ops CLI
// to push due work without waiting for the next tick.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	reclaimed, err := s.store.ReclaimStuck(ctx, reclaimAfter, sweepBatchSize)
	if err != nil {
		s.log.Warn("reclaim of stuck steps failed", "error", err)
	} else if reclaimed > 0 {
		s.log.Info("reclaimed stuck steps", "count", reclaimed)
	}

	claimed, err := s.store.ClaimDueSteps(ctx, sweepBatchSize)
	if err != nil {
		s.log.Warn("claim of due steps failed", "error", err)
		return
	}

	// Enqueues are network calls; fan out with a bounded group. A failed
	// enqueue returns the step to pending for the next pass, never fails
	// the sweep.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepEnqueueConcurrency)

	for _, rec := range claimed {
		rec := rec
		g.Go(func() error {
			if err := s.scheduler.ScheduleStep(gctx, rec.InstanceID, rec.Position, rec.FireAt); err != nil {
				msg := err.Error()
				if markErr := s.store.MarkPending(gctx, rec.StepID, &msg); markErr != nil {
					s.log.DatabaseError("mark step pending", markErr)
				}
				return nil
			}
			s.log.Debug("re-dispatched due step",
				"recipient_key", rec.RecipientKey,
				"sequence_type", string(rec.SequenceType),
				"position", rec.Position,
			)
			return nil
		})
	}
	_ = g.Wait()
}
