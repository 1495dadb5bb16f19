package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// KeyHandler serves signing key endpoints. Only public material is exposed.
type KeyHandler struct {
	svc KeyService
	log *logrus.Logger
}

// NewKeyHandler creates a KeyHandler.
func NewKeyHandler(svc KeyService, log *logrus.Logger) *KeyHandler {
	return &KeyHandler{svc: svc, log: log}
}

// List handles GET /api/v1/keys.
func (h *KeyHandler) List(c *gin.Context) {
	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	keys, err := h.svc.ListKeys(c.Request.Context(), orgID)
	if err != nil {
		respondServiceError(c, h.log, "listing keys", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// Active handles GET /api/v1/keys/active.
func (h *KeyHandler) Active(c *gin.Context) {
	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	key, err := h.svc.GetActiveKey(c.Request.Context(), orgID)
	if err != nil {
		respondServiceError(c, h.log, "getting active key", err)
		return
	}

	c.JSON(http.StatusOK, key)
}

// Rotate handles POST /api/v1/keys/rotate.
func (h *KeyHandler) Rotate(c *gin.Context) {
	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	key, err := h.svc.Rotate(c.Request.Context(), orgID)
	if err != nil {
		respondServiceError(c, h.log, "rotating key", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":  "key.rotate",
		"org_id":  orgID,
		"key_id":  key.ID,
		"version": key.Version,
		"actor":   getActor(c),
	}).Info("audit")

	c.JSON(http.StatusCreated, key)
}

// Archive handles POST /api/v1/keys/:id/archive.
func (h *KeyHandler) Archive(c *gin.Context) {
	keyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	key, err := h.svc.Archive(c.Request.Context(), orgID, keyID)
	if err != nil {
		respondServiceError(c, h.log, "archiving key", err)
		return
	}

	h.log.WithFields(logrus.Fields{"action": "key.archive", "org_id": orgID, "key_id": keyID, "actor": getActor(c)}).Info("audit")

	c.JSON(http.StatusOK, key)
}
