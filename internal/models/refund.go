package models

import (
	"time"
)

// Refund request statuses. APPROVED means an admin authorized the refund;
// COMPLETED means the company has claimed it and the wallet was credited.
const (
	RefundStatusPending   = "PENDING"
	RefundStatusApproved  = "APPROVED"
	RefundStatusRejected  = "REJECTED"
	RefundStatusCompleted = "COMPLETED"
)

// Refundable source transaction types
const (
	RefundSourceJobPayment       = "JOB_PAYMENT"
	RefundSourceSubscriptionBill = "SUBSCRIPTION_BILL"
)

// RefundRequest is a company-initiated refund against a paid job payment or
// subscription bill.
type RefundRequest struct {
	ID              int64      `json:"id" db:"id"`
	CompanyID       int64      `json:"company_id" db:"company_id"`
	TransactionID   int64      `json:"transaction_id" db:"transaction_id"`
	TransactionType string     `json:"transaction_type" db:"transaction_type"`
	Amount          int64      `json:"amount" db:"amount"`
	Reason          string     `json:"reason" db:"reason"`
	Status          string     `json:"status" db:"status"`
	ProcessedBy     int64      `json:"processed_by,omitempty" db:"processed_by"`
	RejectReason    string     `json:"reject_reason,omitempty" db:"reject_reason"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
