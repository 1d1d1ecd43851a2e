package dto

import (
	"net/http"

	"github.com/erp/connector/internal/domain/integration"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeBadRequest is used when the request body cannot be read
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeValidation is used when a request fails validation
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	// ErrCodeRateLimited is used when a client exceeds its request budget
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeServiceUnavailable is used when a dependency is down
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Connector error codes, one per failure kind
const (
	ErrCodeUserCancelled         = "ERR_CONNECT_USER_CANCELLED"
	ErrCodePopupBlocked          = "ERR_CONNECT_POPUP_BLOCKED"
	ErrCodeProviderRejected      = "ERR_CONNECT_PROVIDER_REJECTED"
	ErrCodeNetworkFailure        = "ERR_CONNECT_NETWORK_FAILURE"
	ErrCodeTimedOut              = "ERR_CONNECT_TIMED_OUT"
	ErrCodeTokenExpiredOrRevoked = "ERR_CONNECT_TOKEN_EXPIRED_OR_REVOKED"
	ErrCodeInvalidRequest        = "ERR_CONNECT_INVALID_REQUEST"
	ErrCodeNotConnected          = "ERR_CONNECT_NOT_CONNECTED"
)

// Webhook error codes
const (
	ErrCodeWebhookSignature = "ERR_WEBHOOK_SIGNATURE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeRequestTooLarge:    http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:        http.StatusTooManyRequests,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	// window-side kinds only reach the server when a client relays them
	ErrCodeUserCancelled:         http.StatusConflict,
	ErrCodePopupBlocked:          http.StatusConflict,
	ErrCodeProviderRejected:      http.StatusUnprocessableEntity,
	ErrCodeNetworkFailure:        http.StatusBadGateway,
	ErrCodeTimedOut:              http.StatusGatewayTimeout,
	ErrCodeTokenExpiredOrRevoked: http.StatusUnprocessableEntity,
	ErrCodeInvalidRequest:        http.StatusBadRequest,
	ErrCodeNotConnected:          http.StatusNotFound,

	ErrCodeWebhookSignature: http.StatusUnauthorized,
}

var kindErrorCodes = map[integration.ErrorKind]string{
	integration.KindUserCancelled:         ErrCodeUserCancelled,
	integration.KindPopupBlocked:          ErrCodePopupBlocked,
	integration.KindProviderRejected:      ErrCodeProviderRejected,
	integration.KindNetworkFailure:        ErrCodeNetworkFailure,
	integration.KindTimedOut:              ErrCodeTimedOut,
	integration.KindTokenExpiredOrRevoked: ErrCodeTokenExpiredOrRevoked,
	integration.KindInvalidRequest:        ErrCodeInvalidRequest,
	integration.KindNotConnected:          ErrCodeNotConnected,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorCodeForKind returns the error code of a connector failure kind
func ErrorCodeForKind(kind integration.ErrorKind) string {
	if code, ok := kindErrorCodes[kind]; ok {
		return code
	}
	return ErrCodeInternal
}

// StatusForKind returns the HTTP status of a connector failure kind
func StatusForKind(kind integration.ErrorKind) int {
	return GetHTTPStatus(ErrorCodeForKind(kind))
}
