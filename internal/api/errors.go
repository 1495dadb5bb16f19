package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/httputil"
	"github.com/persistorai/auditseal/internal/metrics"
	"github.com/persistorai/auditseal/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeConflict        = "conflict"
	ErrCodeInternalError   = "internal_error"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeValidationError = "validation_error"
	ErrCodeUnavailable     = "unavailable"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// errorMapping pairs a sentinel with the response it produces.
type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{models.ErrInvalidSource, http.StatusBadRequest, ErrCodeValidationError},
	{models.ErrMissingSourceID, http.StatusBadRequest, ErrCodeValidationError},
	{models.ErrEmptyFileSet, http.StatusBadRequest, ErrCodeValidationError},
	{models.ErrDuplicateFilePath, http.StatusBadRequest, ErrCodeValidationError},
	{models.ErrInvalidDateRange, http.StatusBadRequest, ErrCodeValidationError},
	{models.ErrInvalidRetention, http.StatusBadRequest, ErrCodeValidationError},

	{models.ErrPackageNotFound, http.StatusNotFound, ErrCodeNotFound},
	{models.ErrPackRequestNotFound, http.StatusNotFound, ErrCodeNotFound},
	{models.ErrKeyNotFound, http.StatusNotFound, ErrCodeNotFound},
	{models.ErrNoActiveKey, http.StatusNotFound, ErrCodeNotFound},
	{models.ErrConfigNotFound, http.StatusNotFound, ErrCodeNotFound},
	{models.ErrFileNotFound, http.StatusNotFound, ErrCodeNotFound},

	{models.ErrConfigDisabled, http.StatusConflict, ErrCodeConflict},
	{models.ErrPackageNotSealed, http.StatusConflict, ErrCodeConflict},
	{models.ErrIllegalTransition, http.StatusConflict, ErrCodeConflict},
	{models.ErrStaleTransition, http.StatusConflict, ErrCodeConflict},
	{models.ErrKeyStillActive, http.StatusConflict, ErrCodeConflict},
	{models.ErrKeyAlreadyArchived, http.StatusConflict, ErrCodeConflict},
	{models.ErrRetentionActive, http.StatusConflict, ErrCodeConflict},
	{models.ErrRetentionDowngrade, http.StatusConflict, ErrCodeConflict},

	{models.ErrQueueFull, http.StatusServiceUnavailable, ErrCodeUnavailable},
}

// respondServiceError maps a service error onto a response. Unknown errors
// are logged with op and answered with a generic 500.
func respondServiceError(c *gin.Context, log *logrus.Logger, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			respondError(c, m.status, m.code, err.Error())
			return
		}
	}

	log.WithError(err).WithField("request_id", httputil.RequestID(c)).Error(op)
	respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}
