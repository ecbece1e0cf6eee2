package handler

import (
	"errors"
	"net/http"

	"sppg/internal/apperror"
	"sppg/internal/service"
	"sppg/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// classify maps workflow errors onto HTTP status codes and returns the typed error, if any,
// to expose as response details.
func classify(err error) (int, interface{}) {
	var (
		denied       *apperror.PermissionDeniedError
		terminal     *apperror.TerminalStateError
		transition   *apperror.InvalidTransitionError
		systemRole   *apperror.SystemRoleError
		gate         *apperror.QualityGateError
		overAlloc    *apperror.OverAllocationError
		unknownPerms *apperror.UnknownPermissionError
		notFound     *apperror.NotFoundError
		invalid      *apperror.ValidationError
	)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, nil
	case errors.As(err, &denied):
		return http.StatusForbidden, denied
	// terminal before transition: a TerminalStateError also matches the broader type
	case errors.As(err, &terminal):
		return http.StatusConflict, terminal
	case errors.As(err, &transition):
		return http.StatusConflict, transition
	case errors.As(err, &systemRole):
		return http.StatusConflict, systemRole
	case errors.As(err, &gate):
		return http.StatusUnprocessableEntity, gate
	case errors.As(err, &overAlloc):
		return http.StatusUnprocessableEntity, overAlloc
	case errors.As(err, &unknownPerms):
		return http.StatusUnprocessableEntity, unknownPerms
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid
	default:
		return http.StatusInternalServerError, nil
	}
}

func statusFor(err error) int {
	status, _ := classify(err)
	return status
}

// respondError writes err with its mapped status. Internal errors are attached to the
// gin context for the request logger and hidden from the client.
func respondError(c *gin.Context, err error) {
	status, details := classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, response.Error(status, "Internal server error"))
		return
	}
	c.JSON(status, response.ErrorWithDetails(status, err.Error(), details))
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := service.ParseID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return uuid.Nil, false
	}
	return id, true
}

// optionalID parses an optional uuid query parameter.
func optionalID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := service.ParseID(name, raw)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return &id, true
}
