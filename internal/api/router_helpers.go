package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/middleware"
)

// getOrgID extracts the authenticated organization id from the Gin context
// and validates it is a proper UUID.
func getOrgID(c *gin.Context) string {
	oid := c.GetString(middleware.OrgIDKey)

	if _, err := uuid.Parse(oid); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid organization id")

		return ""
	}

	return oid
}

// getActor returns the caller-declared actor, possibly empty.
func getActor(c *gin.Context) string {
	return c.GetString(middleware.ActorKey)
}

// pathUUID reads a UUID path parameter, answering 400 when it is malformed.
func pathUUID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, fmt.Sprintf("%s: %v", name, err))

		return "", false
	}

	return id, true
}

func ginLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}
		if rid, exists := c.Get(middleware.RequestIDKey); exists {
			fields["request_id"] = rid
		}
		if oid := c.GetString(middleware.OrgIDKey); oid != "" {
			fields["org_id"] = oid
		}
		log.WithFields(fields).Info("request")
	}
}

// maxPaginationLimit caps the maximum number of items per page.
const maxPaginationLimit = 1000

// maxPaginationOffset caps the maximum offset for paginated queries.
const maxPaginationOffset = 100000

func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}

	if v > maxPaginationLimit {
		return maxPaginationLimit
	}

	return v
}

func parseOffset(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}

	if v > maxPaginationOffset {
		return maxPaginationOffset
	}

	return v
}

// validatePathID checks that a path parameter is a UUID.
func validatePathID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("id must be a UUID")
	}
	return nil
}
