package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sequencer_backend/internal/archive"
	"sequencer_backend/internal/dispatch"
	"sequencer_backend/internal/email"
	"sequencer_backend/internal/events"
	"sequencer_backend/internal/journal"
	"sequencer_backend/internal/scheduler"
	"sequencer_backend/internal/state"
	"sequencer_backend/internal/template"
	"sequencer_backend/platform/config"
	"sequencer_backend/platform/db"
	"sequencer_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	stateStore := state.NewRepository(pool)

	journalModule := journal.New(journal.NewRepository(pool), log)
	journalModule.RegisterHandlers(eventBus)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	archiver, err := archive.NewArchiver(cfg)
	if err != nil {
		log.Error("failed to initialize message archive", "error", err)
		panic("failed to initialize message archive: " + err.Error())
	}

	var remote template.RemoteLookup
	if cfg.IsTemplateStoreEnabled() {
		remote = template.NewStoreClient(cfg)
		log.Info("remote template store enabled", "url", cfg.GetTemplateStoreURL())
	}
	resolver := template.NewResolver(remote, template.NewFallbackTable(), log)

	executor := dispatch.NewExecutor(stateStore, resolver, sender, archiver, eventBus, cfg, log)

	// The sweeper re-dispatches due steps that never reached the queue and
	// reclaims work the queue lost.
	stepClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize step scheduler client", "error", err)
		panic("failed to initialize step scheduler client: " + err.Error())
	}
	defer func() { _ = stepClient.Close() }()

	sweeper := scheduler.NewSweeper(stepClient, stateStore, log)
	go sweeper.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, executor, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
