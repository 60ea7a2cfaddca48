package shared

import "fmt"

// Error codes shared by all ledger operations
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeConsistency         = "CONSISTENCY_ERROR"
	CodeInvalidState        = "INVALID_STATE"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code.
// This lets callers match categories with errors.Is(err, shared.ErrValidation).
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError reports malformed or missing input. It is always raised
// before any store mutation.
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewInvalidInputError reports structurally wrong arguments to a pure allocator.
func NewInvalidInputError(format string, args ...any) *DomainError {
	return NewDomainError(CodeInvalidInput, fmt.Sprintf(format, args...))
}

// NewNotFoundError reports a referenced record missing from the store
func NewNotFoundError(resource string, id fmt.Stringer) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id))
}

// NewConsistencyError reports an invariant violation detected after processing
func NewConsistencyError(format string, args ...any) *DomainError {
	return NewDomainError(CodeConsistency, fmt.Sprintf(format, args...))
}

// Common domain errors, usable as errors.Is targets
var (
	ErrValidation          = NewDomainError(CodeValidation, "Validation failed")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrConsistency         = NewDomainError(CodeConsistency, "Ledger invariant violated")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)
