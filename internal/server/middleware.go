package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/parley-go/internal/auth"
)

// ownerKey is the gin context key the authenticated owner is stored under.
const ownerKey = "owner"

// slowRequestThreshold is the duration above which requests are logged at
// WARN level.
const slowRequestThreshold = 2 * time.Second

// requestLogger logs every request with timing.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request failed", attrs...)
		case duration > slowRequestThreshold:
			logger.Warn("slow request", attrs...)
		default:
			logger.Debug("request completed", attrs...)
		}
	}
}

// bearerAuth verifies the Authorization header and stores the owner in the
// request context.
func bearerAuth(tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		owner, err := tokens.Verify(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ownerKey, owner)
		c.Next()
	}
}

// owner returns the authenticated owner from the request context.
func owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}
