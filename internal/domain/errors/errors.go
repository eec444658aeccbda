// Package errors provides the error taxonomy for the ledger and settlement
// engine. Validation and conflict errors are rejected synchronously with a
// stable code; transient errors are designed for admin-triggered retry.
package errors

import (
	"errors"
	"fmt"
)

// Validation errors. These never touch the ledger.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrUnknownToken        = errors.New("unknown token")
	ErrBelowMinimum        = errors.New("amount below minimum withdrawal")
	ErrDailyCapExceeded    = errors.New("daily withdrawal cap exceeded")
	ErrInvalidAddress      = errors.New("invalid destination address")
	ErrRankLossUnconfirmed = errors.New("withdrawal would drop below rank threshold, confirmation required")
	ErrReferralCycle       = errors.New("referrer chain would form a cycle")
)

// Conflict errors. Detected via conditional updates, rejected without
// side effects.
var (
	ErrWithdrawalPending = errors.New("another withdrawal is already pending")
	ErrAlreadyProcessing = errors.New("withdrawal already being processed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateJob      = errors.New("job already scheduled")
)

// General categories
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInternal           = errors.New("internal error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError carries a stable machine-readable code alongside the
// wrapped error
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// New creates a domain error with a stable code
func New(err error, code, message string) *DomainError {
	return &DomainError{Err: err, Code: code, Message: message}
}

// NewRetryable creates a domain error flagged as transient
func NewRetryable(err error, code, message string) *DomainError {
	return &DomainError{Err: err, Code: code, Message: message, Retryable: true}
}

// Code extracts the stable code from an error chain, falling back to
// INTERNAL_ERROR so internals never leak to callers
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}

	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrNonPositiveAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrUnknownToken):
		return "UNKNOWN_TOKEN"
	case errors.Is(err, ErrBelowMinimum):
		return "BELOW_MINIMUM"
	case errors.Is(err, ErrDailyCapExceeded):
		return "DAILY_CAP_EXCEEDED"
	case errors.Is(err, ErrInvalidAddress):
		return "INVALID_ADDRESS"
	case errors.Is(err, ErrRankLossUnconfirmed):
		return "RANK_LOSS_CONFIRMATION_REQUIRED"
	case errors.Is(err, ErrWithdrawalPending):
		return "WITHDRAWAL_PENDING"
	case errors.Is(err, ErrAlreadyProcessing):
		return "ALREADY_PROCESSING"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrDuplicateJob):
		return "DUPLICATE_JOB"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsValidation reports whether the error belongs to the validation class
func IsValidation(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrUnknownToken) ||
		errors.Is(err, ErrBelowMinimum) ||
		errors.Is(err, ErrDailyCapExceeded) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrRankLossUnconfirmed) ||
		errors.Is(err, ErrReferralCycle)
}

// IsConflict reports whether the error belongs to the conflict class
func IsConflict(err error) bool {
	return errors.Is(err, ErrWithdrawalPending) ||
		errors.Is(err, ErrAlreadyProcessing) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateJob)
}

// ShouldRetry reports whether an error is transient
func ShouldRetry(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return !IsValidation(err) && !IsConflict(err) && !errors.Is(err, ErrNotFound)
}

// Wrap adds context while preserving the chain
func Wrap(err error, msg string) error {
	return fmt.Errorf("%s: %w", msg, err)
}
