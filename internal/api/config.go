package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/models"
)

// ConfigHandler serves the org's export policy.
type ConfigHandler struct {
	svc ConfigService
	log *logrus.Logger
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(svc ConfigService, log *logrus.Logger) *ConfigHandler {
	return &ConfigHandler{svc: svc, log: log}
}

// Get handles GET /api/v1/config.
func (h *ConfigHandler) Get(c *gin.Context) {
	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	cfg, err := h.svc.Get(c.Request.Context(), orgID)
	if err != nil {
		respondServiceError(c, h.log, "getting config", err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// Put handles PUT /api/v1/config: opt in, or change the policy.
func (h *ConfigHandler) Put(c *gin.Context) {
	var req models.UpsertConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	cfg, err := h.svc.Upsert(c.Request.Context(), orgID, &req)
	if err != nil {
		respondServiceError(c, h.log, "upserting config", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":          "config.upsert",
		"org_id":          orgID,
		"retention_years": cfg.RetentionYears,
		"retention_mode":  cfg.RetentionMode,
		"actor":           getActor(c),
	}).Info("audit")

	c.JSON(http.StatusOK, cfg)
}

// Delete handles DELETE /api/v1/config. The row is kept, only disabled.
func (h *ConfigHandler) Delete(c *gin.Context) {
	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	if err := h.svc.Disable(c.Request.Context(), orgID); err != nil {
		respondServiceError(c, h.log, "disabling config", err)
		return
	}

	h.log.WithFields(logrus.Fields{"action": "config.disable", "org_id": orgID, "actor": getActor(c)}).Info("audit")

	c.Status(http.StatusNoContent)
}
