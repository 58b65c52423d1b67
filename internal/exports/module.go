package exports

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "sequencer_backend/internal/http"
)

// Module is the exports bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the exports module.
func NewModule(pool *pgxpool.Pool) *Module {
	repo := NewRepository(pool)
	return &Module{
		handler: NewHandler(repo),
		repo:    repo,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "exports"
}

// RegisterRoutes registers the export endpoints on the JWT-protected
// operator group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	grp := ctx.Ops.Group("/exports")
	grp.GET("/instances.csv", m.handler.HandleExportInstances)
	grp.GET("/steps.csv", m.handler.HandleExportSteps)
}

var _ apphttp.Module = (*Module)(nil)
