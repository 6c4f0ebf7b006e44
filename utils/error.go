package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

type ErrorKind string

const (
	KindValidation          ErrorKind = "Validation"
	KindInsufficientBalance ErrorKind = "InsufficientBalance"
	KindNoInflow            ErrorKind = "NoInflow"
	KindNotFound            ErrorKind = "NotFound"
	KindConcurrencyConflict ErrorKind = "ConcurrencyConflict"
	KindPersistence         ErrorKind = "Persistence"
	KindForbidden           ErrorKind = "Forbidden"
)

// AppError is the error every service operation returns to its caller.
// Message is safe to show to users; Err keeps the underlying cause for logs.
type AppError struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// UserMessage is what the API returns. Conflicts and persistence failures never leak internals.
func (e *AppError) UserMessage() string {
	switch e.Kind {
	case KindConcurrencyConflict:
		return "the ledger is being updated by another request, please try again"
	case KindPersistence:
		return "something went wrong while saving, please try again"
	}
	return e.Message
}

func NewValidationError(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewFieldValidationError(fields map[string]string) *AppError {
	return &AppError{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

func NewInsufficientBalanceError(format string, args ...any) *AppError {
	return &AppError{Kind: KindInsufficientBalance, Message: fmt.Sprintf(format, args...)}
}

func NewNoInflowError(format string, args ...any) *AppError {
	return &AppError{Kind: KindNoInflow, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(resource string, id any) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", resource, id), Err: ErrorRecordNotFound}
}

func NewConcurrencyConflictError(err error) *AppError {
	return &AppError{Kind: KindConcurrencyConflict, Message: "ledger is locked or was modified concurrently", Err: err}
}

func NewPersistenceError(err error) *AppError {
	return &AppError{Kind: KindPersistence, Message: "persistence failure", Err: err}
}

func NewForbiddenError(format string, args ...any) *AppError {
	return &AppError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first AppError in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// AsAppError wraps anything that is not already an AppError as a persistence failure.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewPersistenceError(err)
}
