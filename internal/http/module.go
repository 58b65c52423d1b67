// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"sequencer_backend/platform/config"
	"sequencer_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	// The RouterContext provides access to shared middleware and configuration.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
// This avoids passing many parameters to each module's RegisterRoutes method.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the /api/v1 route group. Ingress routes mount here and bring
	// their own API-key middleware.
	V1 *gin.RouterGroup
	// Ops is the JWT-protected operator group under /api/v1/ops.
	Ops *gin.RouterGroup
	// Config is the JWT configuration for auth middleware (scoped access).
	Config config.JWTConfig
	// AuthMiddleware provides the authentication middleware for modules
	// that assemble their own protected groups.
	AuthMiddleware gin.HandlerFunc
	// TriggerRateLimiter is the rate limiter for the trigger ingress.
	TriggerRateLimiter *httpkit.TriggerRateLimiter
}
