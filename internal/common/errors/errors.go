// Package errors provides standardized error handling for the recommendation
// workers and their BPMN process integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeIneligibleSeed     ErrorCode = "INELIGIBLE_SEED"
	ErrCodeRequesterNotFound  ErrorCode = "REQUESTER_NOT_FOUND"
	ErrCodeEmbeddingFailed    ErrorCode = "EMBEDDING_FAILED"
	ErrCodeSearchQueryFailed  ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout      ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeIndexNotFound      ErrorCode = "INDEX_NOT_FOUND"
	ErrCodeHydrationFailed    ErrorCode = "HYDRATION_FAILED"
	ErrCodeIndexingFailed     ErrorCode = "INDEXING_FAILED"
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeEngineUnavailable  ErrorCode = "ENGINE_UNAVAILABLE"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// As returns the first StandardError in err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

func newError(code ErrorCode, message, details string, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewInvalidInputError reports job variables that failed boundary validation.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid request parameters", details, nil)
}

// NewIneligibleSeedError reports a requester whose profile cannot seed a recommendation.
func NewIneligibleSeedError(requesterID int64, reason string) *StandardError {
	return newError(ErrCodeIneligibleSeed, "Requester profile cannot seed recommendations",
		fmt.Sprintf("requesterId: %d, reason: %s", requesterID, reason), nil)
}

// NewRequesterNotFoundError reports an unknown requester id.
func NewRequesterNotFoundError(requesterID int64) *StandardError {
	return newError(ErrCodeRequesterNotFound, "Requester not found",
		fmt.Sprintf("requesterId: %d", requesterID), nil)
}

// NewEmbeddingFailedError wraps an embedding backend failure.
func NewEmbeddingFailedError(err error) *StandardError {
	return newError(ErrCodeEmbeddingFailed, "Embedding generation failed", detailsOf(err), err)
}

// NewSearchQueryFailedError wraps an index failure. info carries the
// backend's structured error body when one was returned.
func NewSearchQueryFailedError(queryType string, err error, info interface{}) *StandardError {
	stdErr := newError(ErrCodeSearchQueryFailed, "Search query failed",
		fmt.Sprintf("queryType: %s, error: %s", queryType, detailsOf(err)), err)
	if info != nil {
		stdErr.WithMetadata("elasticsearch_error", info)
	}
	return stdErr
}

// NewSearchTimeoutError reports an index call that exceeded the request budget.
func NewSearchTimeoutError(queryType string, err error) *StandardError {
	return newError(ErrCodeSearchTimeout, "Search query timeout",
		fmt.Sprintf("queryType: %s", queryType), err)
}

// NewIndexNotFoundError reports a missing index.
func NewIndexNotFoundError(indexName string) *StandardError {
	return newError(ErrCodeIndexNotFound, "Index not found",
		fmt.Sprintf("index: %s", indexName), nil)
}

// NewHydrationFailedError wraps a relational store failure during hydration.
func NewHydrationFailedError(entity string, err error) *StandardError {
	return newError(ErrCodeHydrationFailed, "Relational store query failed",
		fmt.Sprintf("entity: %s, error: %s", entity, detailsOf(err)), err)
}

// NewIndexingFailedError wraps a failure while writing documents to the index.
func NewIndexingFailedError(indexName string, err error) *StandardError {
	return newError(ErrCodeIndexingFailed, "Indexing failed",
		fmt.Sprintf("index: %s, error: %s", indexName, detailsOf(err)), err)
}

// NewDatabaseConnectionFailedError creates a database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnection, "Database connection error", detailsOf(err), err)
}

// NewEngineUnavailableError reports a workflow engine call that could not be delivered.
func NewEngineUnavailableError(operation string, err error) *StandardError {
	return newError(ErrCodeEngineUnavailable, "Workflow engine unavailable",
		fmt.Sprintf("operation: %s, error: %s", operation, detailsOf(err)), err)
}

// NewInternalError wraps anything that does not fit the taxonomy.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", detailsOf(err), err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:       "INVALID_INPUT",
	ErrCodeIneligibleSeed:     "INELIGIBLE_SEED",
	ErrCodeRequesterNotFound:  "REQUESTER_NOT_FOUND",
	ErrCodeEmbeddingFailed:    "BACKEND_FAILURE",
	ErrCodeSearchQueryFailed:  "BACKEND_FAILURE",
	ErrCodeSearchTimeout:      "BACKEND_FAILURE",
	ErrCodeIndexNotFound:      "BACKEND_FAILURE",
	ErrCodeHydrationFailed:    "BACKEND_FAILURE",
	ErrCodeIndexingFailed:     "INDEXING_FAILED",
	ErrCodeDatabaseConnection: "BACKEND_FAILURE",
	ErrCodeEngineUnavailable:  "ENGINE_UNAVAILABLE",
}

// GetRetryCount returns the retry budget handed back to the engine. Failures
// inside the pipeline are surfaced immediately, so only connection-level
// errors raised before a request starts are retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnection, ErrCodeEngineUnavailable:
		return 3
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"errorCategory":     GetErrorCategory(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsClientError reports codes caused by the caller rather than a backend.
func IsClientError(code ErrorCode) bool {
	switch code {
	case ErrCodeInvalidInput, ErrCodeIneligibleSeed, ErrCodeRequesterNotFound:
		return true
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case IsClientError(code):
		return "CLIENT"
	case strings.Contains(codeStr, "EMBEDDING"):
		return "EMBEDDING"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "HYDRATION") || strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "ENGINE"):
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}
