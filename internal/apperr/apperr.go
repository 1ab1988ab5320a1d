// Package apperr defines the typed error taxonomy shared by services and the
// HTTP layer. Every service-level failure is an *Error carrying a stable
// machine-readable code and the transport status it maps to, so handlers never
// branch on message text.
package apperr

import (
	"errors"
	"net/http"
)

const (
	CodeNotFound      = "NOT_FOUND"
	CodeAuthFailed    = "AUTHENTICATION_FAILED"
	CodeAccessDenied  = "ACCESS_DENIED"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeVaultExists   = "VAULT_EXISTS"
	CodeValidation    = "VALIDATION_FAILED"
	CodeWalletAuth    = "WALLET_AUTH_FAILED"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternal      = "INTERNAL"
)

// Error is a service failure with a deterministic transport mapping.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func (e *Error) Error() string { return e.Message }

// WithDetails attaches structured details for the error body.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}

func AuthFailed(message string) *Error {
	return &Error{Code: CodeAuthFailed, Message: message, Status: http.StatusUnauthorized}
}

func AccessDenied(message string) *Error {
	return &Error{Code: CodeAccessDenied, Message: message, Status: http.StatusForbidden}
}

func AlreadyExists(message string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: message, Status: http.StatusConflict}
}

// VaultExists is the duplicate-vault_id failure. It keeps its own code and a
// 400 status because the vault create endpoint reports duplicates differently
// from duplicate registrations.
func VaultExists(message string) *Error {
	return &Error{Code: CodeVaultExists, Message: message, Status: http.StatusBadRequest}
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message, Status: http.StatusUnprocessableEntity}
}

func WalletAuth(message string) *Error {
	return &Error{Code: CodeWalletAuth, Message: message, Status: http.StatusUnauthorized}
}

func RateLimited(message string) *Error {
	return &Error{Code: CodeRateLimited, Message: message, Status: http.StatusTooManyRequests}
}

func Internal(message string) *Error {
	return &Error{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError}
}

// From extracts the *Error from err, or wraps it as an internal failure.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error")
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
