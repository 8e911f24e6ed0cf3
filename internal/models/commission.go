package models

import (
	"time"
)

// Commission statuses
const (
	CommissionStatusPending   = "PENDING"
	CommissionStatusConfirmed = "CONFIRMED"
	CommissionStatusPaid      = "PAID"
)

// Commission types
const (
	CommissionTypeSubscriptionSale = "SUBSCRIPTION_SALE"
	CommissionTypeJobAssignment    = "JOB_ASSIGNMENT"
	CommissionTypeSalesConversion  = "SALES_CONVERSION"
)

// Withdrawal statuses
const (
	WithdrawalStatusPending  = "PENDING"
	WithdrawalStatusApproved = "APPROVED"
	WithdrawalStatusRejected = "REJECTED"
)

// Commission is earned by a consultant for a business event. Created CONFIRMED
// and credited to the consultant's wallet in the same unit of work; moves to
// PAID when a withdrawal covering it is approved.
type Commission struct {
	ID            int64      `json:"id" db:"id"`
	ConsultantID  int64      `json:"consultant_id" db:"consultant_id"`
	RegionID      int64      `json:"region_id" db:"region_id"`
	Type          string     `json:"type" db:"type"`
	Amount        int64      `json:"amount" db:"amount"`
	Status        string     `json:"status" db:"status"`
	ReferenceType string     `json:"reference_type,omitempty" db:"reference_type"`
	ReferenceID   int64      `json:"reference_id,omitempty" db:"reference_id"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty" db:"paid_at"`
}

// CommissionWithdrawal is a consultant's request to pay out earned commissions.
// The commission selection is advisory bookkeeping; funds only move at approval.
type CommissionWithdrawal struct {
	ID               int64      `json:"id" db:"id"`
	ConsultantID     int64      `json:"consultant_id" db:"consultant_id"`
	Amount           int64      `json:"amount" db:"amount"`
	Status           string     `json:"status" db:"status"`
	CommissionIDs    []int64    `json:"commission_ids" db:"commission_ids"`
	PaymentMethod    string     `json:"payment_method" db:"payment_method"`
	PaymentDetails   string     `json:"payment_details" db:"payment_details"`
	ProcessedBy      int64      `json:"processed_by,omitempty" db:"processed_by"`
	PaymentReference string     `json:"payment_reference,omitempty" db:"payment_reference"`
	Reason           string     `json:"reason,omitempty" db:"reason"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}
