package services

import (
	"errors"
	"fmt"
)

// Machine-readable error codes surfaced to admin UIs.
const (
	CodeAccountNotFound              = "ACCOUNT_NOT_FOUND"
	CodeAccountNotActive             = "ACCOUNT_NOT_ACTIVE"
	CodeInsufficientBalance          = "INSUFFICIENT_BALANCE"
	CodeInvalidAmount                = "INVALID_AMOUNT"
	CodeDuplicateRequest             = "DUPLICATE_REQUEST"
	CodeInvalidStateTransition       = "INVALID_STATE_TRANSITION"
	CodeIntegrityViolation           = "INTEGRITY_VIOLATION"
	CodeExternalConfirmationMismatch = "EXTERNAL_CONFIRMATION_MISMATCH"
)

// DomainError is a ledger-level failure with a stable code for UI branching.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches two domain errors by code so wrapped instances with detailed
// messages still satisfy errors.Is against the sentinel values below.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

var (
	ErrAccountNotFound              = &DomainError{CodeAccountNotFound, "account not found"}
	ErrAccountNotActive             = &DomainError{CodeAccountNotActive, "account not active"}
	ErrInsufficientBalance          = &DomainError{CodeInsufficientBalance, "insufficient balance"}
	ErrInvalidAmount                = &DomainError{CodeInvalidAmount, "amount must be positive"}
	ErrDuplicateRequest             = &DomainError{CodeDuplicateRequest, "request already processed"}
	ErrInvalidStateTransition       = &DomainError{CodeInvalidStateTransition, "invalid state transition"}
	ErrIntegrityViolation           = &DomainError{CodeIntegrityViolation, "ledger integrity violation"}
	ErrExternalConfirmationMismatch = &DomainError{CodeExternalConfirmationMismatch, "confirmation does not match a known business object"}
)

// insufficientBalanceError builds the user-facing variant carrying the
// available and required amounts in cents.
func insufficientBalanceError(available, required int64) error {
	return &DomainError{
		Code:    CodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient balance: available %.2f, required %.2f", float64(available)/100, float64(required)/100),
	}
}

func invalidTransitionError(from, to string) error {
	return &DomainError{
		Code:    CodeInvalidStateTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}
