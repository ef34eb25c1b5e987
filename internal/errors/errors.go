// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Search pipeline errors
	ErrCodeSynthesisUnavailable ErrorCode = "SYNTHESIS_UNAVAILABLE"
	ErrCodeSynthesisRejected    ErrorCode = "SYNTHESIS_REJECTED"
	ErrCodeExecutionFailed      ErrorCode = "EXECUTION_FAILED"
	ErrCodeFallbackExhausted    ErrorCode = "FALLBACK_EXHAUSTED"
	ErrCodeEnrichmentFailed     ErrorCode = "ENRICHMENT_FAILED"
	ErrCodeAuditWriteFailed     ErrorCode = "AUDIT_WRITE_FAILED"

	// Static metadata errors
	ErrCodeVocabularyLoad ErrorCode = "VOCABULARY_LOAD_FAILED"
	ErrCodeSchemaLoad     ErrorCode = "SCHEMA_LOAD_FAILED"

	// Datastore errors
	ErrCodeDatastoreUnreachable ErrorCode = "DATASTORE_UNREACHABLE"
	ErrCodeDatabaseQuery        ErrorCode = "DATABASE_QUERY_FAILED"

	// Authentication errors
	ErrCodeNotAuthenticated  ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeInsufficientPerms ErrorCode = "INSUFFICIENT_PERMISSIONS"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Cache errors
	ErrCodeCacheRead  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite ErrorCode = "CACHE_WRITE_FAILED"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code          ErrorCode              `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	Suggestion    string                 `json:"suggestion,omitempty"`
	Documentation string                 `json:"documentation,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message with suggestions
func (e *EnhancedError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}

	if e.Documentation != "" {
		sb.WriteString(fmt.Sprintf("\n\nLearn more: %s", e.Documentation))
	}

	return sb.String()
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the outermost EnhancedError in err's chain,
// or the empty code when there is none.
func CodeOf(err error) ErrorCode {
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) {
		return enhanced.Code
	}
	return ""
}

// HasCode reports whether any EnhancedError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var enhanced *EnhancedError
		if !stderrors.As(err, &enhanced) {
			return false
		}
		if enhanced.Code == code {
			return true
		}
		err = enhanced.Cause
	}
	return false
}

// IsRetryable reports whether the error was marked retryable by its constructor.
func IsRetryable(err error) bool {
	var enhanced *EnhancedError
	if !stderrors.As(err, &enhanced) {
		return false
	}
	retryable, _ := enhanced.Metadata["retryable"].(bool)
	return retryable
}

// Common error constructors with pre-configured messages

// NewSynthesisUnavailableError creates an error for a generative call that produced no usable candidate
func NewSynthesisUnavailableError(err error, reason string) *EnhancedError {
	return Wrap(err, ErrCodeSynthesisUnavailable, "Query synthesis unavailable").
		WithDetails(reason).
		WithSuggestion("The deterministic fallback query is used instead. Check the generative service configuration if this persists.").
		WithMetadata("recoverable", true)
}

// NewSynthesisRejectedError creates an error for a synthesized query refused by the safety gate
func NewSynthesisRejectedError(reason, detail string) *EnhancedError {
	return New(ErrCodeSynthesisRejected, "Synthesized query rejected by safety gate").
		WithDetails(detail).
		WithMetadata("reason", reason).
		WithMetadata("recoverable", true)
}

// NewExecutionFailedError creates an error for a validated query that failed at runtime
func NewExecutionFailedError(err error, path string) *EnhancedError {
	return Wrap(err, ErrCodeExecutionFailed, "Query execution failed").
		WithDetails(fmt.Sprintf("The %s query raised an error in the datastore", path)).
		WithMetadata("path", path).
		WithMetadata("recoverable", path == "synthesized")
}

// NewFallbackExhaustedError creates an error for a fallback path that could not produce a result
func NewFallbackExhaustedError(err error) *EnhancedError {
	return Wrap(err, ErrCodeFallbackExhausted, "Fallback search failed").
		WithDetails("The deterministic fallback query could not be built or executed").
		WithSuggestion("This is an internal server error. Check datastore health and the schema descriptor.")
}

// NewDatastoreUnreachableError creates an error for a datastore that cannot be reached
func NewDatastoreUnreachableError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatastoreUnreachable, "Datastore unreachable").
		WithDetails("Unable to connect to the viewpoint datastore").
		WithSuggestion("The service may be experiencing issues. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewDatabaseQueryError creates an error for auxiliary database operations
func NewDatabaseQueryError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseQuery, "Database query failed").
		WithDetails(fmt.Sprintf("Failed to execute database operation: %s", operation)).
		WithSuggestion("This is an internal server error. If the problem persists, contact support.")
}

// NewEnrichmentError creates an error for failed enrichment lookups
func NewEnrichmentError(err error) *EnhancedError {
	return Wrap(err, ErrCodeEnrichmentFailed, "Candidate enrichment failed").
		WithDetails("Tag and history enrichment could not be loaded; ranking proceeds without it")
}

// NewAuditWriteError creates an error for an audit record that could not be persisted
func NewAuditWriteError(err error, requestID string) *EnhancedError {
	return Wrap(err, ErrCodeAuditWriteFailed, "Failed to persist audit record").
		WithMetadata("request_id", requestID)
}

// NewVocabularyLoadError creates an error for a vocabulary document that could not be loaded
func NewVocabularyLoadError(err error, source string) *EnhancedError {
	return Wrap(err, ErrCodeVocabularyLoad, "Failed to load controlled vocabulary").
		WithDetails(fmt.Sprintf("Vocabulary source: %s", source)).
		WithSuggestion("Check the vocabulary file syntax. The previously loaded vocabulary stays active.")
}

// NewSchemaLoadError creates an error for a schema descriptor that could not be loaded
func NewSchemaLoadError(err error, source string) *EnhancedError {
	return Wrap(err, ErrCodeSchemaLoad, "Failed to load schema descriptor").
		WithDetails(fmt.Sprintf("Schema source: %s", source))
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *EnhancedError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Include a bearer token in the 'Authorization' header, or a valid API key in the 'X-API-Key' header.")
}

// NewInvalidTokenError creates an error for a bearer token that failed validation
func NewInvalidTokenError(err error) *EnhancedError {
	return Wrap(err, ErrCodeInvalidToken, "Invalid authentication token").
		WithSuggestion("Request a new token and try again.")
}

// NewRateLimitedError creates an error for clients over their request budget
func NewRateLimitedError(limit int) *EnhancedError {
	return New(ErrCodeRateLimited, "Rate limit exceeded").
		WithDetails(fmt.Sprintf("Limit is %d requests per minute", limit)).
		WithSuggestion("Wait a moment before sending more requests.").
		WithMetadata("retryable", true)
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}

// NewCacheError creates an error for cache reads or writes
func NewCacheError(err error, code ErrorCode) *EnhancedError {
	return Wrap(err, code, "Result cache operation failed")
}
