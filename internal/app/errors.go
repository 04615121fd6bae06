package app

import (
	"fmt"
	"net/http"
)

const (
	codeUnauthorized       = "UNAUTHORIZED"
	codeForbidden          = "FORBIDDEN"
	codeInvalidInput       = "INVALID_INPUT"
	codeValidation         = "VALIDATION_ERROR"
	codeNotFound           = "NOT_FOUND"
	codeIdentityMismatch   = "IDENTITY_MISMATCH"
	codeIntegrity          = "INTEGRITY_ERROR"
	codeConflict           = "CONFLICT"
	codeTransactionFailure = "TRANSACTION_FAILURE"
	codeUpstream           = "UPSTREAM_ERROR"
	codeRateLimited        = "RATE_LIMITED"
	codeServerError        = "SERVER_ERROR"
	codeUnavailable        = "SERVICE_UNAVAILABLE"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errUnauthorized(message string) *DomainError {
	return domainError(http.StatusUnauthorized, codeUnauthorized, message, nil)
}

func errForbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, codeForbidden, message, nil)
}

func errInvalidInput(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, codeInvalidInput, message, details)
}

func errValidation(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, codeValidation, message, details)
}

func errNotFound(message string, details any) *DomainError {
	return domainError(http.StatusNotFound, codeNotFound, message, details)
}

func errConflict(message string, details any) *DomainError {
	return domainError(http.StatusConflict, codeConflict, message, details)
}

// errUpstream keeps a provider's 4xx status so callers can fix their input.
// Anything else becomes 502.
func errUpstream(provider string, status int, message string) *DomainError {
	code := http.StatusBadGateway
	if status >= 400 && status < 500 {
		code = status
	}
	return domainError(code, codeUpstream, message, map[string]any{
		"provider":       provider,
		"providerStatus": status,
	})
}
