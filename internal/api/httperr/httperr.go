// Package httperr maps domain errors onto HTTP responses.
package httperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/client"
	"github.com/liliang-cn/moviechat/internal/domain"
)

// Status returns the HTTP status for err
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRequestPending):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	var se *client.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Abort writes err as a JSON error body and stops the handler chain
func Abort(c *gin.Context, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(Status(err), gin.H{"error": Message(err)})
}

// Message returns the client facing text for err
func Message(err error) string {
	var se *client.StatusError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, domain.ErrNotFound):
		return "not found"
	case errors.Is(err, domain.ErrRequestPending):
		return "a request is already pending"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate limit exceeded"
	case errors.As(err, &se) && se.Message != "":
		return se.Message
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid request"
	}
	return "internal server error"
}
