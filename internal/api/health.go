// Package api provides the HTTP handlers of the auditseal service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// Database is the slice of dbpool.Pool the health endpoints use.
type Database interface {
	HealthCheck(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db            Database
	log           *logrus.Logger
	version       string
	schemaVersion int
	startTime     time.Time
}

// NewHealthHandler creates a HealthHandler. schemaVersion is the migration
// version this binary expects.
func NewHealthHandler(db Database, log *logrus.Logger, version string, schemaVersion int) *HealthHandler {
	return &HealthHandler{
		db:            db,
		log:           log,
		version:       version,
		schemaVersion: schemaVersion,
		startTime:     time.Now(),
	}
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Database      string  `json:"database"`
	SchemaVersion int     `json:"schema_version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Liveness handles GET /api/v1/health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Database:      "connected",
		SchemaVersion: h.schemaVersion,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	// Best-effort database ping (non-fatal for liveness).
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.HealthCheck(ctx); err != nil {
			resp.Database = "disconnected"
		}
	} else {
		resp.Database = "not_configured"
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready: the database answers and the applied
// schema matches the one this binary was built for.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{
		"database": "ok",
		"schema":   "unknown",
	}

	if h.db == nil {
		checks["database"] = "not_configured"
		c.JSON(http.StatusServiceUnavailable, readinessResponse{Status: "not_ready", Checks: checks})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		h.log.WithError(err).Error("readiness: database health check failed")
		checks["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, readinessResponse{Status: "not_ready", Checks: checks})
		return
	}

	applied, err := h.appliedSchema(ctx)
	switch {
	case err != nil:
		h.log.WithError(err).Error("readiness: schema check failed")
		checks["schema"] = "error"
	case applied != h.schemaVersion:
		h.log.WithFields(logrus.Fields{"applied": applied, "expected": h.schemaVersion}).Warn("readiness: schema version mismatch")
		checks["schema"] = fmt.Sprintf("mismatch: applied %d, expected %d", applied, h.schemaVersion)
	default:
		checks["schema"] = "ok"
	}

	if checks["schema"] != "ok" {
		c.JSON(http.StatusServiceUnavailable, readinessResponse{Status: "not_ready", Checks: checks})
		return
	}

	c.JSON(http.StatusOK, readinessResponse{Status: "ready", Checks: checks})
}

// appliedSchema reads the latest applied goose migration.
func (h *HealthHandler) appliedSchema(ctx context.Context) (int, error) {
	var v int64
	err := h.db.QueryRow(ctx,
		"SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied",
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading goose_db_version: %w", err)
	}

	return int(v), nil
}
