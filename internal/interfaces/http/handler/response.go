package handler

import (
	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/interfaces/http/dto"
)

// APIResponse represents a generic API response for OpenAPI documentation
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// ErrorResponse represents an error API response for OpenAPI documentation
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// ConnectorResponse documents the success reply of the connector endpoint
// @Description Connector result
type ConnectorResponse = connector.Result

// ConnectorRequest documents the connector request document
// @Description Connector request, dispatched by action
type ConnectorRequest = connector.WireRequest

// WebhookAck is the reply to an inbound delivery
// @Description Webhook acknowledgement
type WebhookAck struct {
	Accepted  bool `json:"accepted" example:"true"`
	Duplicate bool `json:"duplicate,omitempty" example:"false"`
}
