package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/service"
)

// PackHandler serves audit pack endpoints.
type PackHandler struct {
	svc   PackService
	queue JobQueue
	log   *logrus.Logger
}

// NewPackHandler creates a PackHandler.
func NewPackHandler(svc PackService, queue JobQueue, log *logrus.Logger) *PackHandler {
	return &PackHandler{svc: svc, queue: queue, log: log}
}

// Create handles POST /api/v1/packs.
func (h *PackHandler) Create(c *gin.Context) {
	var req models.CreatePackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	pack, err := h.svc.Create(c.Request.Context(), orgID, &req, getActor(c))
	if err != nil {
		respondServiceError(c, h.log, "creating pack", err)
		return
	}

	if err := h.queue.Enqueue(service.BuildJob{Kind: service.JobPack, OrgID: orgID, ID: pack.ID}); err != nil {
		h.log.WithError(err).WithField("pack_id", pack.ID).Warn("pack recorded but not scheduled")
		respondServiceError(c, h.log, "scheduling pack", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":  "pack.create",
		"org_id":  orgID,
		"pack_id": pack.ID,
		"start":   pack.StartDate,
		"end":     pack.EndDate,
		"actor":   getActor(c),
	}).Info("audit")

	c.JSON(http.StatusAccepted, pack)
}

// Get handles GET /api/v1/packs/:id.
func (h *PackHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	pack, artifact, err := h.svc.Get(c.Request.Context(), orgID, id)
	if err != nil {
		respondServiceError(c, h.log, "getting pack", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pack": pack, "artifact": artifact})
}

// List handles GET /api/v1/packs.
func (h *PackHandler) List(c *gin.Context) {
	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	packs, hasMore, err := h.svc.List(c.Request.Context(), orgID, models.PackListOpts{
		Status: models.PackStatus(c.Query("status")),
		Limit:  parseInt(c.DefaultQuery("limit", "50"), 50),
		Offset: parseOffset(c.DefaultQuery("offset", "0")),
	})
	if err != nil {
		respondServiceError(c, h.log, "listing packs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"packs": packs, "has_more": hasMore})
}
