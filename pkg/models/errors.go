package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies reconciliation errors.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "validation"
	CodeNotFound         ErrorCode = "not_found"
	CodeRemoteOperation  ErrorCode = "remote_operation"
	CodeOracleDegraded   ErrorCode = "oracle_degraded"
	CodeOperationTimeout ErrorCode = "operation_timeout"
)

// SyncError is a typed error carrying a code, a message and an optional cause.
type SyncError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *SyncError) Unwrap() error {
	return e.Err
}

func NewValidationError(message string, err error) *SyncError {
	return &SyncError{Code: CodeValidation, Message: message, Err: err}
}

func NewNotFoundError(message string, err error) *SyncError {
	return &SyncError{Code: CodeNotFound, Message: message, Err: err}
}

func NewRemoteOperationError(message string, err error) *SyncError {
	return &SyncError{Code: CodeRemoteOperation, Message: message, Err: err}
}

func NewOracleDegradationError(message string, err error) *SyncError {
	return &SyncError{Code: CodeOracleDegraded, Message: message, Err: err}
}

func NewTimeoutError(message string, err error) *SyncError {
	return &SyncError{Code: CodeOperationTimeout, Message: message, Err: err}
}

// HasCode reports whether any SyncError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *SyncError
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}
