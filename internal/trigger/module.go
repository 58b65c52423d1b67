// Package trigger provides the trigger ingress bounded context module.
// This file defines the module that encapsulates all ingress setup and route registration.
package trigger

import (
	"sequencer_backend/internal/events"
	apphttp "sequencer_backend/internal/http"
	"sequencer_backend/internal/journal"
	"sequencer_backend/internal/sequence"
	"sequencer_backend/internal/state"
	"sequencer_backend/platform/logger"
	"sequencer_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the trigger bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the trigger module with all its dependencies.
func NewModule(pool *pgxpool.Pool, dispatcher Dispatcher, store state.Store, journalStore journal.Store, catalog *sequence.Catalog, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(dispatcher, store, journalStore, catalog, eventBus, log)
	handler := NewHandler(service, repo, val)

	return &Module{
		handler: handler,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "trigger"
}

// RegisterRoutes mounts trigger routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public trigger ingress (API key auth, no JWT)
	ingress := ctx.V1.Group("/sequences")
	ingress.Use(ctx.TriggerRateLimiter.RateLimit())
	ingress.Use(APIKeyAuthMiddleware(m.repo))
	ingress.POST("/trigger", m.handler.HandleTrigger)

	// Operator inspection and archive (JWT auth)
	ctx.Ops.GET("/sequences/:instanceId", m.handler.HandleGetInstance)
	ctx.Ops.GET("/sequences/:instanceId/journal", m.handler.HandleInstanceJournal)
	ctx.Ops.GET("/recipients/:recipientKey/sequences", m.handler.HandleListInstances)
	ctx.Ops.GET("/recipients/:recipientKey/journal", m.handler.HandleRecipientJournal)
	ctx.Ops.POST("/recipients/:recipientKey/sequences/:sequenceType/archive", m.handler.HandleArchive)

	// API key management (JWT auth)
	keys := ctx.Ops.Group("/trigger-keys")
	keys.POST("", m.handler.HandleCreateAPIKey)
	keys.GET("", m.handler.HandleListAPIKeys)
	keys.DELETE("/:keyId", m.handler.HandleRevokeAPIKey)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
