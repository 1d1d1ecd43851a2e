package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/interfaces/http/dto"
)

// RequestIDKey is the header carrying the request ID
const RequestIDKey = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader(RequestIDKey)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	resp := dto.NewErrorResponse(code, message)
	resp.Error.RequestID = getRequestID(c)
	c.JSON(dto.GetHTTPStatus(code), resp)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.ErrorWithCode(c, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.ErrorWithCode(c, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.ErrorWithCode(c, dto.ErrCodeInternal, message)
}

// ConnectFailure sends the connector failure body of err. User decisions are
// logged at info, client mistakes at warn and everything else at error.
func (h *BaseHandler) ConnectFailure(c *gin.Context, mp integration.Marketplace, err error) {
	ce := integration.Classify(mp, err)
	status, body := dto.NewConnectorFailure(ce)

	log := logger.GetGinLogger(c).With(
		zap.String("marketplace", string(ce.Marketplace)),
		zap.String("error_kind", ce.Kind.String()),
	)
	switch {
	case ce.Kind.Informational():
		log.Info("connector request ended by user", zap.Error(ce))
	case status < http.StatusInternalServerError:
		log.Warn("connector request failed", zap.Error(ce))
	default:
		log.Error("connector request failed", zap.Error(ce))
	}
	c.JSON(status, body)
}
