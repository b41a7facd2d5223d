package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to collaborators. The first group is the ledger
// taxonomy; the second covers request plumbing.
const (
	CodeInsufficientFunds       = "INSUFFICIENT_FUNDS"
	CodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	CodeAccountDisabled         = "ACCOUNT_DISABLED"
	CodeRoomClosed              = "ROOM_CLOSED"
	CodeBettingClosed           = "BETTING_CLOSED"
	CodePoolUnderfunded         = "POOL_UNDERFUNDED"
	CodeRequestAlreadyProcessed = "REQUEST_ALREADY_PROCESSED"
	CodeContention              = "CONTENTION"

	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, domain.ErrRoomClosed()).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the AppError code found anywhere in err's chain, or "" if none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Ledger error constructors.

func ErrInsufficientFunds(currency Currency, balance, requested int64) *AppError {
	return &AppError{
		Code:    CodeInsufficientFunds,
		Message: fmt.Sprintf("insufficient %s: balance %d, requested %d", currency, balance, requested),
		Status:  400,
	}
}

func ErrAccountNotFound(id string) *AppError {
	return &AppError{Code: CodeAccountNotFound, Message: fmt.Sprintf("account %s not found", id), Status: 404}
}

func ErrAccountDisabled(id string) *AppError {
	return &AppError{Code: CodeAccountDisabled, Message: fmt.Sprintf("account %s is disabled", id), Status: 403}
}

func ErrRoomClosed(id string) *AppError {
	return &AppError{Code: CodeRoomClosed, Message: fmt.Sprintf("room %s is closed", id), Status: 409}
}

func ErrBettingClosed(id string) *AppError {
	return &AppError{Code: CodeBettingClosed, Message: fmt.Sprintf("betting on event %s is closed", id), Status: 409}
}

func ErrPoolUnderfunded(pool, required int64) *AppError {
	return &AppError{
		Code:    CodePoolUnderfunded,
		Message: fmt.Sprintf("prize pool %d cannot cover payouts of %d", pool, required),
		Status:  409,
	}
}

func ErrRequestAlreadyProcessed(id string, status RequestStatus) *AppError {
	return &AppError{
		Code:    CodeRequestAlreadyProcessed,
		Message: fmt.Sprintf("request %s already %s", id, status),
		Status:  409,
	}
}

func ErrContention(attempts int, cause error) *AppError {
	return &AppError{
		Code:    CodeContention,
		Message: fmt.Sprintf("gave up after %d conflicting attempts", attempts),
		Status:  503,
		Cause:   cause,
	}
}

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
