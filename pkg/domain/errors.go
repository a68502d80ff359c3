package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a stable code that
// the surrounding API layer can translate to a user-facing response.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeComputation   = "COMPUTATION_ERROR"
	ErrCodeNoEligibleRep = "NO_ELIGIBLE_REP"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// NewNotFoundError creates an error for a missing or cross-tenant entity.
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewConflictError creates an error for a state conflict, such as a
// duplicate active enrollment.
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewComputationError creates an error for an unavailable scoring signal
// source. The previously stored score is left untouched.
func NewComputationError(msg string, err error) error {
	return &DomainError{
		Code:    ErrCodeComputation,
		Message: msg,
		Err:     err,
	}
}

// NewNoEligibleRepError creates an error for an empty filtered roster.
func NewNoEligibleRepError() error {
	return &DomainError{
		Code:    ErrCodeNoEligibleRep,
		Message: "no eligible sales rep available for allocation",
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewInternalError wraps an unexpected infrastructure failure.
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "an internal error occurred",
		Err:     err,
	}
}

// Helper functions to check error types

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrCodeNotFound
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return GetErrorCode(err) == ErrCodeConflict
}

// IsComputation checks if the error is a computation error.
func IsComputation(err error) bool {
	return GetErrorCode(err) == ErrCodeComputation
}

// IsNoEligibleRep checks if the error is a no-eligible-rep error.
func IsNoEligibleRep(err error) bool {
	return GetErrorCode(err) == ErrCodeNoEligibleRep
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return GetErrorCode(err) == ErrCodeValidation
}

// GetErrorCode extracts the error code from a domain error, unwrapping as
// needed. Non-domain errors map to INTERNAL_ERROR.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}
