package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Integration Errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidTenantID             = errors.New("integration: invalid tenant ID")
	ErrInvalidMarketplace          = errors.New("integration: invalid marketplace")
	ErrInvalidAuthType             = errors.New("integration: invalid auth type")
	ErrInvalidCredentials          = errors.New("integration: credentials incomplete for auth type")
	ErrInvalidStatusTransition     = errors.New("integration: invalid status transition")
	ErrNotOAuth                    = errors.New("integration: operation requires an oauth integration")
	ErrIntegrationNotFound         = errors.New("integration: integration not found")
	ErrMarketplaceNotConfigured    = errors.New("integration: marketplace not configured")
	ErrWebhookRegistrationNotFound = errors.New("integration: webhook registration not found")
	ErrSyncMarkerNotFound          = errors.New("integration: sync marker not found")
	ErrInvalidEndpoint             = errors.New("integration: invalid webhook endpoint")
	ErrStateNotFound               = errors.New("integration: state unknown, expired or already used")
	ErrStateConflict               = errors.New("integration: state already issued")
)

// ---------------------------------------------------------------------------
// ConnectError taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies a connection failure
type ErrorKind string

const (
	// KindUserCancelled means the user closed the consent window or declined
	KindUserCancelled ErrorKind = "user_cancelled"
	// KindPopupBlocked means the consent window could not be created
	KindPopupBlocked ErrorKind = "popup_blocked"
	// KindProviderRejected covers invalid_grant, access_denied, invalid_scope and reused codes
	KindProviderRejected ErrorKind = "provider_rejected"
	// KindNetworkFailure is transient; the caller may retry
	KindNetworkFailure ErrorKind = "network_failure"
	// KindTimedOut means no redirect arrived within the window ceiling
	KindTimedOut ErrorKind = "timed_out"
	// KindTokenExpiredOrRevoked requires the tenant to re-authenticate
	KindTokenExpiredOrRevoked ErrorKind = "token_expired_or_revoked"
	// KindInvalidRequest means the request itself is malformed or unsupported
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindNotConnected means no integration exists for the marketplace
	KindNotConnected ErrorKind = "not_connected"
)

// Remedy is the user-visible follow-up a failure calls for
type Remedy string

const (
	RemedyDismiss   Remedy = "dismiss"
	RemedyTryAgain  Remedy = "try_again"
	RemedyReconnect Remedy = "reconnect"
	RemedyFixInput  Remedy = "fix_input"
)

// Retryable reports whether the same request may be sent again unchanged
func (k ErrorKind) Retryable() bool {
	return k == KindNetworkFailure
}

// Informational reports whether the failure is a user decision rather than a fault
func (k ErrorKind) Informational() bool {
	return k == KindUserCancelled
}

// Remedy returns the follow-up shown to the user
func (k ErrorKind) Remedy() Remedy {
	switch k {
	case KindUserCancelled, KindPopupBlocked:
		return RemedyDismiss
	case KindProviderRejected, KindTimedOut, KindNetworkFailure:
		return RemedyTryAgain
	case KindTokenExpiredOrRevoked, KindNotConnected:
		return RemedyReconnect
	default:
		return RemedyFixInput
	}
}

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	return string(k)
}

// ConnectError is the single structured failure produced by connector operations
type ConnectError struct {
	Kind        ErrorKind
	Marketplace Marketplace
	// Code is the provider's error code when one was reported (e.g. invalid_grant)
	Code    string
	Message string
	Err     error
	// Spent marks a failure after single-use input (an authorization state)
	// was consumed. The same request can never succeed again.
	Spent bool
}

// Error implements the error interface
func (e *ConnectError) Error() string {
	msg := "integration: " + string(e.Kind)
	if e.Marketplace != "" {
		msg += " [" + string(e.Marketplace) + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is matches any ConnectError of the same kind, so errors.Is(err, ErrTimedOut) works
func (e *ConnectError) Is(target error) bool {
	var t *ConnectError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Marketplace == "" && t.Message == "" && t.Err == nil
}

// Retryable reports whether the caller may retry the same request
func (e *ConnectError) Retryable() bool {
	return !e.Spent && e.Kind.Retryable()
}

// Kind sentinels for errors.Is
var (
	ErrUserCancelled         = &ConnectError{Kind: KindUserCancelled}
	ErrPopupBlocked          = &ConnectError{Kind: KindPopupBlocked}
	ErrProviderRejected      = &ConnectError{Kind: KindProviderRejected}
	ErrNetworkFailure        = &ConnectError{Kind: KindNetworkFailure}
	ErrTimedOut              = &ConnectError{Kind: KindTimedOut}
	ErrTokenExpiredOrRevoked = &ConnectError{Kind: KindTokenExpiredOrRevoked}
	ErrInvalidRequest        = &ConnectError{Kind: KindInvalidRequest}
	ErrNotConnected          = &ConnectError{Kind: KindNotConnected}
)

// NewConnectError creates a ConnectError
func NewConnectError(kind ErrorKind, marketplace Marketplace, message string, cause error) *ConnectError {
	return &ConnectError{
		Kind:        kind,
		Marketplace: marketplace,
		Message:     message,
		Err:         cause,
	}
}

// Rejected builds a ProviderRejected error carrying the provider's error code
func Rejected(marketplace Marketplace, code, message string) *ConnectError {
	return &ConnectError{
		Kind:        KindProviderRejected,
		Marketplace: marketplace,
		Code:        code,
		Message:     message,
	}
}

// NetworkFailure wraps a transport error
func NetworkFailure(marketplace Marketplace, cause error) *ConnectError {
	return NewConnectError(KindNetworkFailure, marketplace, "", cause)
}

// SpentAttempt classifies err and marks it final: the authorization attempt
// it belongs to is used up and the caller has to start a new one.
func SpentAttempt(marketplace Marketplace, err error) *ConnectError {
	ce := Classify(marketplace, err)
	if ce == nil {
		return nil
	}
	cp := *ce
	cp.Spent = true
	if cp.Kind.Retryable() && cp.Message == "" {
		cp.Message = "authorization attempt used up, start a new one"
	}
	return &cp
}

// AsConnectError extracts a ConnectError from an error chain
func AsConnectError(err error) (*ConnectError, bool) {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the kind of a connect error, or "" for other errors
func KindOf(err error) ErrorKind {
	if ce, ok := AsConnectError(err); ok {
		return ce.Kind
	}
	return ""
}

// Classify turns an arbitrary error into a ConnectError. Domain validation
// errors become InvalidRequest; anything unknown is treated as a network
// failure so the caller may retry.
func Classify(marketplace Marketplace, err error) *ConnectError {
	if err == nil {
		return nil
	}
	if ce, ok := AsConnectError(err); ok {
		if ce.Marketplace == "" {
			cp := *ce
			cp.Marketplace = marketplace
			return &cp
		}
		return ce
	}
	switch {
	case errors.Is(err, ErrIntegrationNotFound):
		return NewConnectError(KindNotConnected, marketplace, "no integration for marketplace", err)
	case errors.Is(err, ErrInvalidMarketplace),
		errors.Is(err, ErrInvalidAuthType),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidTenantID),
		errors.Is(err, ErrMarketplaceNotConfigured),
		errors.Is(err, ErrNotOAuth),
		errors.Is(err, ErrInvalidStatusTransition):
		return NewConnectError(KindInvalidRequest, marketplace, "", err)
	case errors.Is(err, ErrStateNotFound):
		return NewConnectError(KindProviderRejected, marketplace, "authorization state rejected", err)
	default:
		return NewConnectError(KindNetworkFailure, marketplace, "", fmt.Errorf("unexpected: %w", err))
	}
}
