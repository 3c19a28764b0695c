// Package handler serves the voucher export API.
package handler

import (
	"errors"
	"net/http"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/interfaces/http/dto"
	"github.com/erp/voucher-export/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrNoActor is returned when a request reaches a handler without authenticated claims
var ErrNoActor = errors.New("no authenticated actor in context")

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// actorFrom builds the export actor from the JWT claims of the request
func actorFrom(c *gin.Context) (export.Actor, error) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		return export.Actor{}, ErrNoActor
	}
	return claims.Actor()
}

// getTenantID extracts the tenant ID from the JWT claims
func getTenantID(c *gin.Context) (uuid.UUID, error) {
	tenantID := middleware.GetJWTTenantID(c)
	if tenantID == "" {
		return uuid.Nil, ErrNoActor
	}
	return uuid.Parse(tenantID)
}

// pathID parses the :id path parameter
func pathID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.ID)
	return id, err == nil
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Accepted sends a 202 response for work that continues in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		details,
	))
}

// HandleError converts domain and export errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var validationErr *export.ValidationError
	if errors.As(err, &validationErr) {
		h.ValidationError(c, []dto.ValidationDetail{{
			Field:   validationErr.Field,
			Message: validationErr.Message,
		}})
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
		return
	}

	var infraErr *export.InfrastructureError
	if errors.As(err, &infraErr) {
		_ = c.Error(err)
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, "A backing service is unavailable")
		return
	}

	var coded export.CodedError
	if errors.As(err, &coded) {
		code := dto.NormalizeErrorCode(coded.Code())
		h.Error(c, dto.GetHTTPStatus(code), code, err.Error())
		return
	}

	if errors.Is(err, ErrNoActor) {
		h.Unauthorized(c, "Authentication required")
		return
	}

	// keep the cause for the request logger
	_ = c.Error(err)
	h.InternalError(c, "An unexpected error occurred")
}
