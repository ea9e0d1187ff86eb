// Package errors provides the typed error taxonomy shared by the recommender,
// its stores and embedding providers, and the transports in front of them.
package errors

import (
	"errors"
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
	ErrCodeUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrCodeUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"

	ErrCodeStore        ErrorCode = "STORE_ERROR"
	ErrCodeStoreTimeout ErrorCode = "STORE_TIMEOUT"

	ErrCodeDataIntegrity ErrorCode = "DATA_INTEGRITY_ERROR"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
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
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
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

// NewUpstreamError wraps a failure of the embedding provider.
func NewUpstreamError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstream,
		Message:   "Embedding provider request failed",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, errString(err)),
		Retryable: true,
		Metadata:  map[string]interface{}{"provider": provider},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewUpstreamTimeoutError reports an embedding call that exceeded its deadline.
func NewUpstreamTimeoutError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamTimeout,
		Message:   "Embedding provider timed out",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: true,
		Metadata:  map[string]interface{}{"provider": provider},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewStoreError wraps a catalog store failure.
func NewStoreError(backend string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStore,
		Message:   "Catalog store query failed",
		Details:   fmt.Sprintf("backend: %s, error: %s", backend, errString(err)),
		Retryable: true,
		Metadata:  map[string]interface{}{"backend": backend},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewStoreTimeoutError reports a catalog query that exceeded its deadline.
func NewStoreTimeoutError(backend string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreTimeout,
		Message:   "Catalog store query timed out",
		Details:   fmt.Sprintf("backend: %s", backend),
		Retryable: true,
		Metadata:  map[string]interface{}{"backend": backend},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewDataIntegrityError names a catalog record whose stored data is unusable.
func NewDataIntegrityError(recordID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDataIntegrity,
		Message:   "Catalog record failed integrity check",
		Details:   fmt.Sprintf("recordId: %s, %s", recordID, details),
		Retryable: false,
		Metadata:  map[string]interface{}{"recordId": recordID},
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError reports caller input that cannot be normalized.
func NewValidationError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Invalid request",
		Details:   fmt.Sprintf("%s: %s", field, details),
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps anything that escaped the taxonomy.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   errString(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// ==========================
// 4. Classification
// ==========================

// AsStandardError returns the first StandardError in err's chain, or wraps err
// as an internal error.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

func hasCode(err error, codes ...ErrorCode) bool {
	var stdErr *StandardError
	if !errors.As(err, &stdErr) {
		return false
	}
	for _, c := range codes {
		if stdErr.Code == c {
			return true
		}
	}
	return false
}

// IsUpstream reports whether err is an embedding provider failure or timeout.
func IsUpstream(err error) bool {
	return hasCode(err, ErrCodeUpstream, ErrCodeUpstreamTimeout)
}

// IsStore reports whether err is a catalog store failure or timeout.
func IsStore(err error) bool {
	return hasCode(err, ErrCodeStore, ErrCodeStoreTimeout)
}

func IsDataIntegrity(err error) bool {
	return hasCode(err, ErrCodeDataIntegrity)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeUpstream, ErrCodeStore:
		return 3
	case ErrCodeUpstreamTimeout, ErrCodeStoreTimeout:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	if stdErr == nil {
		return nil
	}
	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        GetRetryCount(stdErr.Code),
		ErrorVariables: stdErr.Metadata,
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch {
	case strings.HasPrefix(string(code), "UPSTREAM"):
		return "upstream"
	case strings.HasPrefix(string(code), "STORE"):
		return "store"
	case code == ErrCodeDataIntegrity:
		return "data"
	case code == ErrCodeValidation:
		return "validation"
	default:
		return "internal"
	}
}
