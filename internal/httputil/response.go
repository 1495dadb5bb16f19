// Package httputil provides shared HTTP response helpers.
package httputil

import "github.com/gin-gonic/gin"

// RequestIDKey is the gin context key holding the canonical request ID.
const RequestIDKey = "request_id"

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// RequestID returns the canonical request ID, or "" outside the RequestID middleware.
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// RespondError writes an ErrorBody and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: RequestID(c),
	})
}
