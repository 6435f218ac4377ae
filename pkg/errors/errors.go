package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrConflict
	ErrInternal
	ErrUnavailable
)

// Engine failure taxonomy. Everything below the tick level is contained
// and recorded; these sentinels classify how.
var (
	// ErrStoreUnavailable means the rule store could not be queried. The
	// tick aborts with no partial dispatch and waits for the next interval.
	ErrStoreUnavailable = errors.New("rule store unavailable")

	// ErrDuplicateInFlight means an enqueue collided with an active job
	// holding the same idempotency key. Not an error to the caller.
	ErrDuplicateInFlight = errors.New("duplicate job in flight")

	// ErrSchedulerOverlap means a tick was skipped because another runner
	// holds the tick lock. Logged, never escalated.
	ErrSchedulerOverlap = errors.New("scheduler tick already running")
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// StoreUnavailable wraps a store query failure in both the AppError shape
// and the taxonomy sentinel so callers can use errors.Is.
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Code:    ErrUnavailable,
		Message: ErrStoreUnavailable.Error(),
		Err:     fmt.Errorf("%w: %w", ErrStoreUnavailable, err),
	}
}
