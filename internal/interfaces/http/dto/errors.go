package dto

import (
	"net/http"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

// Error codes owned by the HTTP layer. Domain codes are passed through.
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInternal        = "ERR_INTERNAL"
	ErrCodeUnavailable     = "ERR_UNAVAILABLE"
	ErrCodeTimeout         = "ERR_TIMEOUT"
	ErrCodeNotImplemented  = "ERR_NOT_IMPLEMENTED"
	ErrCodeDecisionFailed  = "ERR_DECISION_FAILED"
	ErrCodeDecisionTimeout = "ERR_DECISION_TIMEOUT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	validation.CodeNotFound:       http.StatusNotFound,
	validation.CodeInvalidInput:   http.StatusBadRequest,
	validation.CodeReasonRequired: http.StatusBadRequest,
	validation.CodeNotConnected:   http.StatusServiceUnavailable,
	validation.CodeInFlight:       http.StatusConflict,
	validation.CodeServerRejected: http.StatusBadGateway,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
	ErrCodeTimeout:         http.StatusGatewayTimeout,
	ErrCodeNotImplemented:  http.StatusNotImplemented,
	ErrCodeDecisionFailed:  http.StatusBadGateway,
	ErrCodeDecisionTimeout: http.StatusGatewayTimeout,
}

// GetHTTPStatus returns the HTTP status code for an error code
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
