package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestType distinguishes withdrawals from loans.
type RequestType string

const (
	RequestWithdrawal RequestType = "withdrawal"
	RequestLoan       RequestType = "loan"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool { return t == RequestWithdrawal || t == RequestLoan }

// Currency is the balance a request of type t moves: withdrawals draw cash,
// loans credit points.
func (t RequestType) Currency() Currency {
	if t == RequestWithdrawal {
		return CurrencyCash
	}
	return CurrencyPoints
}

// RequestStatus allows exactly one terminal transition out of pending.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDeclined RequestStatus = "declined"
)

// Request is a withdrawal or loan awaiting an operator decision.
type Request struct {
	ID          uuid.UUID     `json:"id"`
	AccountID   uuid.UUID     `json:"account_id"`
	Type        RequestType   `json:"type"`
	Currency    Currency      `json:"currency"`
	Amount      int64         `json:"amount"`
	Status      RequestStatus `json:"status"`
	ProcessedBy *uuid.UUID    `json:"processed_by,omitempty"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}
