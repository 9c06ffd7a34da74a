package validation

import "errors"

// Error codes surfaced to the local control API
const (
	CodeNotFound       = "VALIDATION_NOT_FOUND"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotConnected   = "NOT_CONNECTED"
	CodeReasonRequired = "REASON_REQUIRED"
	CodeInFlight       = "DECISION_IN_FLIGHT"
	CodeServerRejected = "SERVER_REJECTED"
)

// DomainError represents a validation domain error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped copies compare equal
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

var (
	ErrValidationNotFound = NewDomainError(CodeNotFound, "validation request is not pending")
	ErrNotConnected       = NewDomainError(CodeNotConnected, "transport is not connected")
	ErrReasonRequired     = NewDomainError(CodeReasonRequired, "a reason is required to reject a transfer")
	ErrDecisionInFlight   = NewDomainError(CodeInFlight, "a decision for this validation is already in flight")
)

// CodeOf returns the domain code of err, or "" when err is not a DomainError
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
