// Package errors defines the application error taxonomy.
//
// Unparseable messages are not errors in this system; they are designed
// null-results handled inside the parser. The taxonomy below covers the
// failures that do surface: bad learned data, store I/O, configuration
// problems, and sync sequencing violations.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategorySource        ErrorCategory = "source"
	CategoryEnrichment    ErrorCategory = "enrichment"
	CategoryStore         ErrorCategory = "store"
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySync          ErrorCategory = "sync"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Source errors
	CodeSourceUnavailable ErrorCode = "source_unavailable"
	CodeSourceCorrupted   ErrorCode = "source_corrupted"

	// Enrichment errors
	CodeMalformedRule       ErrorCode = "malformed_rule"
	CodeMalformedCorrection ErrorCode = "malformed_correction"

	// Store errors
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeWriteRejected    ErrorCode = "write_rejected"
	CodeSchemaError      ErrorCode = "schema_error"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Sync errors
	CodeSyncInFlight    ErrorCode = "sync_in_flight"
	CodeCheckpointStale ErrorCode = "checkpoint_stale"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// LedgerError is the base error type for all application errors
type LedgerError struct {
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
func (e *LedgerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether the orchestrator may retry the failed sync
// window. Store and source failures are recoverable because the checkpoint
// does not advance on failure; configuration and internal errors are not.
func (e *LedgerError) Recoverable() bool {
	return e.Category == CategoryStore || e.Category == CategorySource
}

// GetExitCode returns an appropriate process exit code for the error
func (e *LedgerError) GetExitCode() int {
	switch e.Category {
	case CategorySource:
		return 2
	case CategoryEnrichment:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryStore, CategorySync:
		return 5
	case CategoryInternal:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *LedgerError) WithContext(key string, value interface{}) *LedgerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *LedgerError) WithSuggestion(suggestion string) *LedgerError {
	e.Suggestion = suggestion
	return e
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a new LedgerError
func New(category ErrorCategory, code ErrorCode, message string) *LedgerError {
	return &LedgerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with LedgerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *LedgerError {
	if err == nil {
		return nil
	}

	return &LedgerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// SourceError creates a message-source error
func SourceError(code ErrorCode, source string, err error) *LedgerError {
	var message, suggestion string

	switch code {
	case CodeSourceUnavailable:
		message = fmt.Sprintf("message source unavailable: %s", source)
		suggestion = "check the source path and permissions"
	case CodeSourceCorrupted:
		message = fmt.Sprintf("message source appears corrupted: %s", source)
		suggestion = "verify the export file format"
	default:
		message = fmt.Sprintf("message source error: %s", source)
		suggestion = "check the message source and retry"
	}

	result := newOrWrap(err, CategorySource, code, message)
	return result.WithSuggestion(suggestion).WithContext("source", source)
}

// StoreError creates a persistence error. Store errors are recoverable: the
// checkpoint must not advance and the same window is retried on the next sync.
func StoreError(code ErrorCode, operation string, err error) *LedgerError {
	var message, suggestion string

	switch code {
	case CodeStoreUnavailable:
		message = fmt.Sprintf("ledger store unavailable during %s", operation)
		suggestion = "check the database path and that no other process holds the lock"
	case CodeWriteRejected:
		message = fmt.Sprintf("ledger store rejected write during %s", operation)
		suggestion = "the sync will retry the same message window; check disk space"
	case CodeSchemaError:
		message = fmt.Sprintf("ledger store schema error during %s", operation)
		suggestion = "the database file may belong to a different application version"
	default:
		message = fmt.Sprintf("ledger store error during %s", operation)
		suggestion = "check the database and retry"
	}

	result := newOrWrap(err, CategoryStore, code, message)
	return result.WithSuggestion(suggestion).WithContext("operation", operation)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *LedgerError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting via flag, env, or config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	result := newOrWrap(err, CategoryConfiguration, code, message)
	return result.WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// SyncError creates a sync-sequencing error
func SyncError(code ErrorCode, operation string, err error) *LedgerError {
	var message, suggestion string

	switch code {
	case CodeSyncInFlight:
		message = "a sync pass is already in flight"
		suggestion = "wait for the current pass to finish; concurrent syncs would double-import"
	case CodeCheckpointStale:
		message = fmt.Sprintf("checkpoint could not be advanced after %s", operation)
		suggestion = "the next sync will re-read the same window; merge dedup makes this safe"
	default:
		message = fmt.Sprintf("sync error during %s", operation)
		suggestion = "retry the sync"
	}

	result := newOrWrap(err, CategorySync, code, message)
	return result.WithSuggestion(suggestion).WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *LedgerError {
	result := newOrWrap(err, CategoryInternal, CodeUnexpectedError,
		fmt.Sprintf("unexpected error during %s", operation))
	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

func newOrWrap(err error, category ErrorCategory, code ErrorCode, message string) *LedgerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	Errors     []*LedgerError        `json:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*LedgerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		Errors:     errs,
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// IsLedgerError checks if an error is a LedgerError
func IsLedgerError(err error) bool {
	_, ok := err.(*LedgerError)
	return ok
}

// AsLedgerError extracts a LedgerError from an error chain
func AsLedgerError(err error) (*LedgerError, bool) {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a LedgerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *LedgerError {
	if err == nil {
		return nil
	}

	if ledgerErr, ok := AsLedgerError(err); ok {
		return ledgerErr
	}

	return Wrap(err, category, code, message)
}
