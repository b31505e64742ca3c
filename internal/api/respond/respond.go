// Package respond writes JSON error responses for apperr kinds.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindUnauthenticated:   http.StatusUnauthorized,
	apperr.KindInvalidTransition: http.StatusUnprocessableEntity,
	apperr.KindTimeout:           http.StatusGatewayTimeout,
	apperr.KindUnavailable:       http.StatusServiceUnavailable,
	apperr.KindInternal:          http.StatusInternalServerError,
}

// Status returns the HTTP status for err's kind.
func Status(err error) int {
	if s, ok := statusByKind[apperr.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error aborts the request with {"error": message, "code": kind}. Internal
// errors are logged and their detail withheld from the client.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()

	var e *apperr.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	if kind == apperr.KindInternal {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(Status(err), gin.H{"error": msg, "code": kind})
}

// BadRequest reports an undecodable request body.
func BadRequest(c *gin.Context, err error) {
	Error(c, apperr.Validation("invalid request: %v", err))
}
