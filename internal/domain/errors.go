package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error taxonomy codes
const (
	// ErrCodeAggregationFailed signals a page fetch failed mid-scan; no
	// partial aggregate is ever returned.
	ErrCodeAggregationFailed = "AGGREGATION_FAILED"

	// ErrCodeInvariantViolation signals a rejected state mutation, e.g.
	// starting a playbook while one is already active.
	ErrCodeInvariantViolation = "INVARIANT_VIOLATION"

	// ErrCodeNotFound signals an unknown client/template/action id.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeInconsistentState signals a failed reconciliation identity,
	// i.e. a data or logic bug that must be surfaced, not swallowed.
	ErrCodeInconsistentState = "INCONSISTENT_STATE"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// NewAggregationError wraps a failed page fetch
func NewAggregationError(collection string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeAggregationFailed,
		Message: fmt.Sprintf("aggregation over %s failed", collection),
		Details: err.Error(),
	}
}

// NewInvariantViolationError creates a new invariant violation error
func NewInvariantViolationError(message, details string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvariantViolation,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource, id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: fmt.Sprintf("ID: %s", id),
	}
}

// NewInconsistentStateError creates a new inconsistent state error
func NewInconsistentStateError(message, details string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInconsistentState,
		Message: message,
		Details: details,
	}
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(message, details string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidInput,
		Message: message,
		Details: details,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// IsDomainError checks if an error is a domain error
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// CodeOf extracts the domain error code, or INTERNAL_ERROR for foreign errors
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is a domain error with the given code
func HasCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}
