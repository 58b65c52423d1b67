package trigger

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the trigger ingress credential. Callers are
// server-side assessment tools, never browsers.
const APIKeyHeader = "X-Sequencer-API-Key"

// Gin context keys set by APIKeyAuthMiddleware.
const (
	ContextKeyID   = "triggerKeyID"
	ContextKeyName = "triggerKeyName"
)

// APIKeyAuthMiddleware validates the X-Sequencer-API-Key header and sets
// the key identity on the gin context.
func APIKeyAuthMiddleware(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(APIKeyHeader)
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		keyHash := HashKey(apiKey)
		key, err := repo.GetByHash(c.Request.Context(), keyHash)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(ContextKeyID, key.ID)
		c.Set(ContextKeyName, key.Name)
		c.Next()
	}
}
