package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/interfaces/http/middleware"
)

// ConnectorHandler exposes the Connector Backend as one dispatch endpoint
type ConnectorHandler struct {
	BaseHandler
	backend   connector.Backend
	providers integration.ProviderRegistry
}

// NewConnectorHandler creates a new ConnectorHandler
func NewConnectorHandler(backend connector.Backend, providers integration.ProviderRegistry) *ConnectorHandler {
	return &ConnectorHandler{backend: backend, providers: providers}
}

// Dispatch godoc
// @ID           dispatchConnector
// @Summary      Run a connector action
// @Description  Dispatches authenticate, get_auth_url, process_callback, refresh, validate, disconnect or status for the tenant of the bearer token
// @Tags         connector
// @Accept       json
// @Produce      json
// @Param        request body ConnectorRequest true "Connector request"
// @Success      200 {object} ConnectorResponse
// @Failure      400 {object} dto.ConnectorFailure
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} dto.ConnectorFailure
// @Failure      422 {object} dto.ConnectorFailure
// @Failure      502 {object} dto.ConnectorFailure
// @Security     BearerAuth
// @Router       /api/v1/connector [post]
func (h *ConnectorHandler) Dispatch(c *gin.Context) {
	tenantID, ok := middleware.GetTenantUUID(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var wire connector.WireRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		h.ConnectFailure(c, "", integration.NewConnectError(integration.KindInvalidRequest, "", "request body is not a valid connector request", err))
		return
	}

	req, err := connector.DecodeRequest(wire, h.providers)
	if err != nil {
		h.ConnectFailure(c, integration.Marketplace(wire.Marketplace), err)
		return
	}
	if !middleware.MustHavePermission(c, permissionFor(req.Action())) {
		return
	}

	result, err := h.backend.Dispatch(c.Request.Context(), tenantID, req)
	if err != nil {
		h.ConnectFailure(c, req.Target(), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// permissionFor returns the permission an action needs. Status is the only
// action that never calls the marketplace or changes the integration.
func permissionFor(action connector.Action) string {
	if action == connector.ActionStatus {
		return auth.PermissionRead
	}
	return auth.PermissionConnect
}
