// Package errors provides categorized error types for the reconciliation
// engine. Every error carries a category, a specific code, optional context
// and a fix suggestion, and maps to a process exit code. Setup failures are
// fatal; match-attempt failures are contained by the engine and never abort
// the run.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategorySetup      ErrorCategory = "setup"
	CategoryConfig     ErrorCategory = "configuration"
	CategoryStorage    ErrorCategory = "storage"
	CategoryMatching   ErrorCategory = "matching"
	CategoryValidation ErrorCategory = "validation"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Setup errors
	CodeConnectionFailed ErrorCode = "connection_failed"
	CodeMigrationFailed  ErrorCode = "migration_failed"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Storage errors
	CodeQueryFailed    ErrorCode = "query_failed"
	CodeWriteFailed    ErrorCode = "write_failed"
	CodeTxAborted      ErrorCode = "transaction_aborted"
	CodeDuplicateEntry ErrorCode = "duplicate_entry"

	// Matching errors
	CodeMatchAttemptFailed ErrorCode = "match_attempt_failed"

	// Validation errors
	CodeInvalidRecord ErrorCode = "invalid_record"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategorySetup:
		return 2
	case CategoryConfig:
		return 3
	case CategoryStorage:
		return 4
	case CategoryMatching, CategoryValidation, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// SetupError creates a fatal data-access setup error
func SetupError(err error, detail string) *ReconcilerError {
	return Wrap(err, CategorySetup, CodeConnectionFailed,
		fmt.Sprintf("failed to establish data-access session: %s", detail)).
		WithSuggestion("check the database URL and that the database is reachable")
}

// MigrationError creates an error for failed schema migration
func MigrationError(err error) *ReconcilerError {
	return Wrap(err, CategorySetup, CodeMigrationFailed, "failed to migrate database schema")
}

// ConfigError creates a configuration error
func ConfigError(code ErrorCode, message string) *ReconcilerError {
	return New(CategoryConfig, code, message)
}

// QueryError creates an error for a failed record query
func QueryError(operation string, err error) *ReconcilerError {
	return Wrap(err, CategoryStorage, CodeQueryFailed,
		fmt.Sprintf("record query failed: %s", operation)).
		WithContext("operation", operation)
}

// MatchAttemptError creates a contained error for a failed match attempt. The
// pair is treated as unmatched; the engine continues with the next candidate.
func MatchAttemptError(paymentID, deductionID string, err error) *ReconcilerError {
	return Wrap(err, CategoryMatching, CodeMatchAttemptFailed,
		fmt.Sprintf("match attempt failed for payment %s against deduction %s", paymentID, deductionID)).
		WithContext("payment_id", paymentID).
		WithContext("deduction_id", deductionID)
}

// GetExitCode extracts an exit code from any error. ReconcilerErrors carry
// their own category mapping; anything else exits 1.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr.GetExitCode()
	}

	return 1
}

// IsCategory checks whether the error belongs to the given category
func IsCategory(err error, category ErrorCategory) bool {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr.Category == category
	}
	return false
}
