package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/service"
)

// maxVerifyUpload bounds the multipart form held in memory during verification.
const maxVerifyUpload = 32 << 20

// PackageHandler serves package endpoints.
type PackageHandler struct {
	creator  PackageCreator
	reader   PackageReader
	verifier VerificationService
	queue    JobQueue
	log      *logrus.Logger
}

// NewPackageHandler creates a PackageHandler.
func NewPackageHandler(creator PackageCreator, reader PackageReader, verifier VerificationService, queue JobQueue, log *logrus.Logger) *PackageHandler {
	return &PackageHandler{creator: creator, reader: reader, verifier: verifier, queue: queue, log: log}
}

type createPackageRequest struct {
	Source models.SourceRef `json:"source"`
}

// Create handles POST /api/v1/packages. The package is recorded pending and
// built asynchronously; poll GET /packages/:id for the outcome.
func (h *PackageHandler) Create(c *gin.Context) {
	var req createPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Source.IsZero() {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, models.ErrInvalidSource.Error())
		return
	}

	// audit_pack packages are only created by their pack run.
	if req.Source.Kind() == models.SourceAuditPack {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "audit_pack packages are created through /packs")
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	pkg, err := h.creator.Create(c.Request.Context(), orgID, req.Source, getActor(c))
	if err != nil {
		respondServiceError(c, h.log, "creating package", err)
		return
	}

	if err := h.queue.Enqueue(service.BuildJob{Kind: service.JobPackage, OrgID: orgID, ID: pkg.ID}); err != nil {
		h.log.WithError(err).WithField("package_id", pkg.ID).Warn("package recorded but not scheduled")
		respondServiceError(c, h.log, "scheduling package", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":     "package.create",
		"org_id":     orgID,
		"package_id": pkg.ID,
		"source":     req.Source.String(),
		"actor":      getActor(c),
	}).Info("audit")

	c.JSON(http.StatusAccepted, pkg)
}

// List handles GET /api/v1/packages.
func (h *PackageHandler) List(c *gin.Context) {
	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	opts := models.PackageListOpts{
		Status: models.PackageStatus(c.Query("status")),
		Limit:  parseInt(c.DefaultQuery("limit", "50"), 50),
		Offset: parseOffset(c.DefaultQuery("offset", "0")),
	}

	pkgs, hasMore, err := h.reader.ListPackages(c.Request.Context(), orgID, opts)
	if err != nil {
		respondServiceError(c, h.log, "listing packages", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"packages": pkgs, "has_more": hasMore})
}

// Get handles GET /api/v1/packages/:id.
func (h *PackageHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	pkg, err := h.reader.GetPackage(c.Request.Context(), orgID, id)
	if err != nil {
		respondServiceError(c, h.log, "getting package", err)
		return
	}

	c.JSON(http.StatusOK, pkg)
}

// Files handles GET /api/v1/packages/:id/files.
func (h *PackageHandler) Files(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	ctx := c.Request.Context()

	if _, err := h.reader.GetPackage(ctx, orgID, id); err != nil {
		respondServiceError(c, h.log, "getting package", err)
		return
	}

	files, err := h.reader.ListFiles(ctx, orgID, id)
	if err != nil {
		respondServiceError(c, h.log, "listing package files", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

// Proof handles GET /api/v1/packages/:id/proof/:index.
func (h *PackageHandler) Proof(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "index must be a non-negative integer")
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	proof, err := h.verifier.Proof(c.Request.Context(), orgID, id, index)
	if err != nil {
		respondServiceError(c, h.log, "building proof", err)
		return
	}

	c.JSON(http.StatusOK, proof)
}

type verifyRequest struct {
	// FetchArchive re-hashes the stored archive. Defaults to true.
	FetchArchive *bool `json:"fetch_archive"`
}

// Verify handles POST /api/v1/packages/:id/verify. A multipart body supplies
// fresh file bytes, one part per file with the archive path as field name.
// Otherwise an optional JSON body selects whether the stored archive is
// re-hashed.
func (h *PackageHandler) Verify(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	vr := service.VerifyRequest{
		PackageID:  id,
		VerifiedBy: getActor(c),
		Source:     models.VerifySourceAPI,
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		files, err := multipartFiles(c)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		vr.Files = files
	} else {
		var req verifyRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
				return
			}
		}
		vr.FetchArchive = req.FetchArchive == nil || *req.FetchArchive
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}
	vr.OrgID = orgID

	report, err := h.verifier.Verify(c.Request.Context(), vr)
	if err != nil {
		respondServiceError(c, h.log, "verifying package", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":     "package.verify",
		"org_id":     orgID,
		"package_id": id,
		"is_valid":   report.IsValid,
		"actor":      vr.VerifiedBy,
	}).Info("audit")

	c.JSON(http.StatusOK, report)
}

// multipartFiles reads every uploaded part into memory, keyed by field name.
func multipartFiles(c *gin.Context) ([]models.SourceFile, error) {
	if err := c.Request.ParseMultipartForm(maxVerifyUpload); err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	form := c.Request.MultipartForm
	if form == nil || len(form.File) == 0 {
		return nil, errors.New("multipart body carries no files")
	}

	files := make([]models.SourceFile, 0, len(form.File))
	for path, headers := range form.File {
		if len(headers) != 1 {
			return nil, fmt.Errorf("%w: %s", models.ErrDuplicateFilePath, path)
		}

		f, err := headers[0].Open()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		files = append(files, models.BytesFile(path, data))
	}

	return files, nil
}

// Verifications handles GET /api/v1/packages/:id/verifications.
func (h *PackageHandler) Verifications(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	orgID := getOrgID(c)
	if orgID == "" {
		return
	}

	logs, err := h.verifier.ListVerifications(c.Request.Context(), orgID, id, parseInt(c.DefaultQuery("limit", "50"), 50))
	if err != nil {
		respondServiceError(c, h.log, "listing verifications", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verifications": logs})
}
