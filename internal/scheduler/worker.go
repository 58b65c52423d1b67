package scheduler

import (
	"context"
	"fmt"

	"sequencer_backend/internal/dispatch"
	"sequencer_backend/platform/config"
	"sequencer_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes step tasks and runs them through the dispatch executor.
// A returned error requeues the task with backoff; the executor only
// returns errors for conditions worth retrying.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	exec   *dispatch.Executor
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, exec *dispatch.Executor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetSchedulerQueue()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetSchedulerConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		exec:   exec,
		log:    log,
	}

	mux.HandleFunc(TaskSequenceStepDue, w.handleSequenceStepDue)

	return w, nil
}

func (w *Worker) handleSequenceStepDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSequenceStepDuePayload(task)
	if err != nil {
		return fmt.Errorf("parse step payload: %v: %w", err, asynq.SkipRetry)
	}

	instanceID, err := uuid.Parse(payload.InstanceID)
	if err != nil {
		return fmt.Errorf("parse instance id %q: %v: %w", payload.InstanceID, err, asynq.SkipRetry)
	}
	if payload.Position < 1 {
		return fmt.Errorf("invalid position %d: %w", payload.Position, asynq.SkipRetry)
	}

	return w.exec.ExecuteStep(ctx, instanceID, payload.Position)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
