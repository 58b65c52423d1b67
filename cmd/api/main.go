package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sequencer_backend/internal/archive"
	"sequencer_backend/internal/dispatch"
	"sequencer_backend/internal/email"
	"sequencer_backend/internal/events"
	"sequencer_backend/internal/exports"
	apphttp "sequencer_backend/internal/http"
	"sequencer_backend/internal/http/router"
	"sequencer_backend/internal/journal"
	"sequencer_backend/internal/livefeed"
	"sequencer_backend/internal/scheduler"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/internal/trigger"
	"sequencer_backend/platform/config"
	"sequencer_backend/platform/db"
	"sequencer_backend/platform/logger"
	"sequencer_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	stepScheduler, closeScheduler := initStepScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// The trigger path never sends email, but a broken sender config should
	// surface here rather than on the first due step.
	if _, err := email.NewSender(cfg); err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// Message archive (MinIO). Verified at startup; the step workers write it.
	archiver, err := archive.NewArchiver(cfg)
	if err != nil {
		log.Error("failed to initialize message archive", "error", err)
		panic("failed to initialize message archive: " + err.Error())
	}
	ensureArchiveBucket(ctx, log, cfg, archiver)

	catalog, err := sequence.LoadCatalog(cfg.GetCatalogPath())
	if err != nil {
		log.Error("failed to load sequence catalog", "error", err)
		panic("failed to load sequence catalog: " + err.Error())
	}
	log.Info("sequence catalog loaded", "types", len(catalog.Types()))

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	stateStore := state.NewRepository(pool)
	journalStore := journal.NewRepository(pool)

	// Journal subscribes to every engine event (not HTTP-facing)
	journalModule := journal.New(journalStore, log)
	journalModule.RegisterHandlers(eventBus)

	orchestrator := dispatch.NewOrchestrator(stateStore, catalog, stepScheduler, eventBus, cfg, log)

	triggerModule := trigger.NewModule(pool, orchestrator, stateStore, journalStore, catalog, eventBus, val, log)
	exportsModule := exports.NewModule(pool)

	// Live feed mirrors the journal's subscriptions onto an SSE stream
	livefeedModule := livefeed.NewModule(log)
	livefeedModule.RegisterHandlers(eventBus)
	defer livefeedModule.Close()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			triggerModule,
			exportsModule,
			livefeedModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// unavailableScheduler stands in when the step queue is not configured.
// Every enqueue fails, which the dispatch pipeline treats as degraded mode:
// planned steps stay pending until the sweeper re-dispatches them.
type unavailableScheduler struct {
	reason error
}

func (s unavailableScheduler) ScheduleStep(context.Context, uuid.UUID, int, time.Time) error {
	return s.reason
}

func initStepScheduler(cfg config.SchedulerConfig, log *logger.Logger) (dispatch.StepScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; planned steps stay pending until the queue is available")
		return unavailableScheduler{reason: errors.New("step queue not configured")}, nil
	}

	stepClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize step scheduler client", "error", err)
		return unavailableScheduler{reason: err}, nil
	}

	return stepClient, func() {
		_ = stepClient.Close()
	}
}

// ensureArchiveBucket wraps the retry logic for verifying the archive bucket
// exists. A no-op archiver has no bucket to verify.
func ensureArchiveBucket(ctx context.Context, log *logger.Logger, cfg config.ArchiveConfig, archiver archive.Archiver) {
	minioArchiver, ok := archiver.(*archive.MinIOArchiver)
	if !ok {
		log.Warn("MINIO_ENDPOINT not configured; message archive disabled")
		return
	}

	if err := withRetry(ctx, log, "ensure archive bucket", 5, 2*time.Second, func() error {
		return minioArchiver.EnsureBucketExists(ctx)
	}); err != nil {
		log.Error("failed to ensure archive bucket exists", "error", err, "bucket", cfg.GetArchiveBucket())
		panic("failed to ensure archive bucket exists: " + err.Error())
	}
	log.Info("message archive initialized", "bucket", cfg.GetArchiveBucket())
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
