package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Schema or contract violation
	ErrCatExecution  ErrorCategory = "execution"  // Runtime failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Backend rate limited
	ErrCatState      ErrorCategory = "state"      // State corruption
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent or illegal mutation
	ErrCatBudget     ErrorCategory = "budget"     // Cost ceiling or metered quota hit
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatNetwork    ErrorCategory = "network"    // Network connectivity
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// Error codes used across components.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeRevisionCeiling   = "REVISION_CEILING"
	CodeBudgetExhausted   = "BUDGET_EXHAUSTED"
	CodeCostCeiling       = "COST_CEILING"
	CodeSchemaInvalid     = "SCHEMA_INVALID"
	CodeLockHeld          = "LOCK_HELD"
)

// DomainError is a structured error from the domain layer. Retryable
// marks transient-infrastructure failures; everything else must be
// branched on by the caller, never blindly retried.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]any
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// IsRetryable reports whether err (or any error it wraps) is a
// transient failure worth retrying with backoff.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// IsConflict reports whether err is a business-rule conflict.
func IsConflict(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category == ErrCatConflict
	}
	return false
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category == ErrCatNotFound
	}
	return false
}

// ErrValidation creates a schema/contract violation error. Never retryable.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{Category: ErrCatValidation, Code: code, Message: message}
}

// ErrExecution creates a runtime failure, retryable by default.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{Category: ErrCatExecution, Code: code, Message: message, Retryable: true}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{Category: ErrCatTimeout, Code: "TIMEOUT", Message: message, Retryable: true}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{Category: ErrCatRateLimit, Code: "RATE_LIMITED", Message: message, Retryable: true}
}

// ErrNetwork creates a network connectivity error.
func ErrNetwork(message string) *DomainError {
	return &DomainError{Category: ErrCatNetwork, Code: "NETWORK", Message: message, Retryable: true}
}

// ErrState creates a state corruption error.
func ErrState(code, message string) *DomainError {
	return &DomainError{Category: ErrCatState, Code: code, Message: message}
}

// ErrConflict creates a business-rule conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{Category: ErrCatConflict, Code: code, Message: message}
}

// ErrBudget creates a budget exhaustion error.
func ErrBudget(code, message string) *DomainError {
	return &DomainError{Category: ErrCatBudget, Code: code, Message: message}
}

// ErrNotFound creates a not-found error.
func ErrNotFound(message string) *DomainError {
	return &DomainError{Category: ErrCatNotFound, Code: "NOT_FOUND", Message: message}
}

// ErrInternal creates an unexpected internal error.
func ErrInternal(message string) *DomainError {
	return &DomainError{Category: ErrCatInternal, Code: "INTERNAL", Message: message}
}

// ErrInvalidTransition creates the conflict raised when an order status
// transition violates the adjacency table.
func ErrInvalidTransition(from, to OrderStatus) *DomainError {
	return &DomainError{
		Category: ErrCatConflict,
		Code:     CodeInvalidTransition,
		Message:  fmt.Sprintf("illegal status transition %s -> %s", from, to),
		Details:  map[string]any{"from": string(from), "to": string(to)},
	}
}

// ErrRevisionCeiling creates the conflict raised when the bounded
// revision loop is exhausted.
func ErrRevisionCeiling(count int) *DomainError {
	return &DomainError{
		Category: ErrCatConflict,
		Code:     CodeRevisionCeiling,
		Message:  fmt.Sprintf("revision ceiling reached after %d cycles", count),
		Details:  map[string]any{"count": count},
	}
}
