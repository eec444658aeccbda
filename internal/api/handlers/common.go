package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// getAccountID extracts the authenticated account from context
func getAccountID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("account_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}

// getAdminID extracts the authenticated operator from context
func getAdminID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("admin_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}

// pagination parses limit/offset query params with sane bounds
func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// respondSuccess sends the standard success envelope
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, entities.SuccessResponse{Success: true, Data: data})
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, entities.ErrorResponse{Code: code, Message: message})
}

// respondDomainError maps an error to its HTTP status and stable code
func respondDomainError(c *gin.Context, err error) {
	code := domainerrors.Code(err)

	var status int
	switch {
	case domainerrors.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case domainerrors.IsConflict(err):
		status = http.StatusConflict
	case errors.Is(err, domainerrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domainerrors.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Never leak internals to callers
		message = "internal server error"
	}

	respondError(c, status, code, message)
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message)
}

// parseIDParam parses a uuid path parameter
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondBadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
