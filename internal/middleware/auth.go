package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Context keys set by AuthMiddleware.
const (
	OrgIDKey = "org_id"
	ActorKey = "actor"

	// ActorHeader optionally names the person or system acting for the org.
	// It is recorded as created_by / verified_by / requested_by.
	ActorHeader = "X-Audit-Actor"
)

// authTimingFloor is the minimum response time of a rejected request, so
// valid and invalid API keys cannot be told apart by latency.
const authTimingFloor = 50 * time.Millisecond

// OrgLookup resolves an API key to the organization it belongs to.
type OrgLookup interface {
	GetOrgByAPIKey(ctx context.Context, apiKey string) (string, error)
}

func truncateKey(key string) string {
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return key
}

func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < authTimingFloor {
		time.Sleep(authTimingFloor - elapsed)
	}
}

// AuthMiddleware authenticates requests by Bearer API key and stores the
// organization id under OrgIDKey. A nil guard disables lockout tracking.
func AuthMiddleware(lookup OrgLookup, log *logrus.Logger, guard *BruteForceGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if c.Writer.Status() == http.StatusUnauthorized {
				enforceTimingFloor(start)
			}
		}()

		apiKey := ExtractBearerToken(c)
		if apiKey == "" {
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
			return
		}

		orgID, err := lookup.GetOrgByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			logAuthFailure(log, c, apiKey)
			if guard != nil {
				guard.RecordFailure(apiKey)
			}

			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}

		if guard != nil {
			guard.ResetKey(apiKey)
		}

		c.Set(OrgIDKey, orgID)
		c.Set(ActorKey, actorFrom(c))
		c.Next()
	}
}

// actorFrom returns the caller-declared actor, trimmed and capped.
func actorFrom(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader(ActorHeader))
	if len(actor) > 200 {
		actor = actor[:200]
	}
	return actor
}

// ExtractBearerToken extracts the API key from the Authorization header.
func ExtractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func logAuthFailure(log *logrus.Logger, c *gin.Context, apiKey string) {
	log.WithFields(logrus.Fields{
		"client_ip":  c.ClientIP(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"request_id": c.GetString(RequestIDKey),
		"key_prefix": truncateKey(apiKey),
	}).Warn("authentication failed: invalid api key")
}
