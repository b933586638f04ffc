// README: Shared handler utilities: error-taxonomy to HTTP status mapping.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"drivemecrazy/internal/modules/ride"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(c *gin.Context, status int, msg, code string) {
	c.JSON(status, errorResponse{Error: msg, Code: code})
}

// writeRideError maps the coordinator's error taxonomy onto HTTP statuses.
// AlreadyAccepted keeps its own code so losing drivers can tell an expected
// race loss from a retriable conflict.
func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error(), "validation")
	case errors.Is(err, ride.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, ride.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error(), "forbidden")
	case errors.Is(err, ride.ErrInvalidTransition):
		writeError(c, http.StatusConflict, err.Error(), "invalid_transition")
	case errors.Is(err, ride.ErrAlreadyAccepted):
		writeError(c, http.StatusConflict, err.Error(), "already_accepted")
	case errors.Is(err, ride.ErrConflict):
		writeError(c, http.StatusConflict, err.Error(), "conflict")
	default:
		writeError(c, http.StatusInternalServerError, "internal error", "")
	}
}
