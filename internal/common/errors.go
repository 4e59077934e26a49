package common

import (
	"errors"
	"net/http"
)

// Error codes shared across the instant-payment flow. The split matters to
// callers: VALIDATION is user-correctable, CONFIG is operator-correctable,
// TX_ID and the transport codes are upstream failures surfaced without retry.
const (
	CodeValidation       = "VALIDATION"
	CodeConfig           = "CONFIG"
	CodeCertParse        = "CERT_PARSE"
	CodeTransactionID    = "TX_ID"
	CodeMissingIdentity  = "MISSING_IDENTITY"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeSubscribeFailed  = "SUBSCRIBE_FAILED"
	CodeInternal         = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ValidationError flags missing or malformed caller input.
func ValidationError(message string, err error) *AppError {
	return NewAppError(CodeValidation, message, http.StatusBadRequest, err)
}

// ConfigError flags missing or invalid certificate material. Not retryable
// by the caller; an operator has to fix the deployment.
func ConfigError(message string, err error) *AppError {
	return NewAppError(CodeConfig, message, http.StatusInternalServerError, err)
}

// TransactionIDError flags an upstream transaction-id failure. The single
// attempt is not retried; the initiation aborts.
func TransactionIDError(message string, err error) *AppError {
	return NewAppError(CodeTransactionID, message, http.StatusBadGateway, err)
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
