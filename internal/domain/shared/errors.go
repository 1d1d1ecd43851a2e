package shared

import "errors"

// DomainError is a coded error raised below the application layer. Copies
// with the same code match under errors.Is.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a coded error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// ErrConcurrencyConflict is returned when a save loses an optimistic lock race
var ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "integration was modified by another process")
