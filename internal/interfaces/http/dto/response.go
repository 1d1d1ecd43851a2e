package dto

import "github.com/erp/connector/internal/domain/integration"

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// ConnectorFailure is the failure reply of the connector endpoint
// @Description Connector failure with its kind and retry hint
type ConnectorFailure struct {
	Success     bool   `json:"success" example:"false"`
	Error       string `json:"error" example:"the marketplace rejected the request"`
	ErrorKind   string `json:"error_kind" example:"provider_rejected"`
	Retryable   bool   `json:"retryable" example:"false"`
	Code        string `json:"code,omitempty" example:"invalid_grant"`
	Marketplace string `json:"marketplace,omitempty" example:"shopify"`
	Remedy      string `json:"remedy,omitempty" example:"try_again"`
}

// NewConnectorFailure builds the failure body of a connector error and its HTTP status
func NewConnectorFailure(ce *integration.ConnectError) (int, ConnectorFailure) {
	msg := ce.Message
	if msg == "" {
		msg = describeKind(ce.Kind)
	}
	return StatusForKind(ce.Kind), ConnectorFailure{
		Success:     false,
		Error:       msg,
		ErrorKind:   ce.Kind.String(),
		Retryable:   ce.Retryable(),
		Code:        ce.Code,
		Marketplace: string(ce.Marketplace),
		Remedy:      string(ce.Kind.Remedy()),
	}
}

func describeKind(kind integration.ErrorKind) string {
	switch kind {
	case integration.KindUserCancelled:
		return "the user cancelled the authorization"
	case integration.KindPopupBlocked:
		return "the authorization window could not be opened"
	case integration.KindProviderRejected:
		return "the marketplace rejected the request"
	case integration.KindNetworkFailure:
		return "the marketplace could not be reached"
	case integration.KindTimedOut:
		return "the authorization was not completed in time"
	case integration.KindTokenExpiredOrRevoked:
		return "the marketplace access has expired or was revoked"
	case integration.KindNotConnected:
		return "the marketplace is not connected"
	default:
		return "the request is invalid"
	}
}
