// Package errors provides structured error types for claimvault.
// Every error carries a category, code, message and retryable flag so that
// callers can branch on the category without inspecting messages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors by the kind of failure.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryNotFound   ErrorCategory = "NOT_FOUND"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryRemote     ErrorCategory = "REMOTE"
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidClaim  = "INVALID_CLAIM"
	CodeInvalidUpdate = "INVALID_UPDATE"
	CodeInvalidEvent  = "INVALID_EVENT"

	// Not-found codes
	CodeClaimNotFound = "CLAIM_NOT_FOUND"

	// Storage codes
	CodeReadFailed   = "READ_FAILED"
	CodeWriteFailed  = "WRITE_FAILED"
	CodeDeleteFailed = "DELETE_FAILED"
	CodeBackupFailed = "BACKUP_FAILED"

	// Remote codes
	CodeUnavailable   = "UNAVAILABLE"
	CodeRequestFailed = "REQUEST_FAILED"
	CodeAuthFailed    = "AUTH_FAILED"
	CodeProbeFailed   = "PROBE_FAILED"

	// Config codes
	CodeMissingSetting = "MISSING_SETTING"
	CodeInvalidSetting = "INVALID_SETTING"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Prototype errors for errors.Is comparisons. Matching is by category and
// code, so any error with the same pair matches regardless of message.
var (
	ErrNotFound    = New(ErrCategoryNotFound, CodeClaimNotFound, "claim not found")
	ErrUnavailable = New(ErrCategoryRemote, CodeUnavailable, "remote store unavailable")
)

// ClaimError is the structured error type used throughout the system.
type ClaimError struct {
	Category    ErrorCategory
	Code        string
	Message     string
	FieldErrors []string
	Details     map[string]interface{}
	Cause       error
	Retryable   bool
}

// Error returns a formatted error string.
func (e *ClaimError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
	if len(e.FieldErrors) > 0 {
		msg += " (" + strings.Join(e.FieldErrors, "; ") + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ClaimError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ClaimError) Is(target error) bool {
	var t *ClaimError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ClaimError.
func New(category ErrorCategory, code, message string) *ClaimError {
	return &ClaimError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new ClaimError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ClaimError {
	return &ClaimError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ClaimError) WithDetails(details map[string]interface{}) *ClaimError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithFieldErrors returns a copy of the error carrying per-field messages.
func (e *ClaimError) WithFieldErrors(fieldErrors ...string) *ClaimError {
	cp := *e
	cp.FieldErrors = append([]string(nil), fieldErrors...)
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a ClaimError.
func GetCategory(err error) ErrorCategory {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a ClaimError.
func GetCode(err error) string {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetFieldErrors returns the per-field messages of a validation error.
func GetFieldErrors(err error) []string {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.FieldErrors
	}
	return nil
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool {
	return GetCategory(err) == ErrCategoryNotFound
}

// isRetryable determines if an error code is retryable.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeWriteFailed:
		return true
	case category == ErrCategoryRemote && code == CodeRequestFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string, fieldErrors ...string) *ClaimError {
	return New(ErrCategoryValidation, code, message).WithFieldErrors(fieldErrors...)
}

func NewNotFoundError(id string) *ClaimError {
	return New(ErrCategoryNotFound, CodeClaimNotFound, fmt.Sprintf("claim %s not found", id))
}

func NewStorageError(code, message string, cause error) *ClaimError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewRemoteError(code, message string, cause error) *ClaimError {
	return Wrap(ErrCategoryRemote, code, message, cause)
}

func NewConfigError(code, message string) *ClaimError {
	return New(ErrCategoryConfig, code, message)
}

func NewInternalError(message string, cause error) *ClaimError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
