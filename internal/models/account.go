package models

import (
	"time"
)

// Account owner types
const (
	OwnerTypeCompany    = "COMPANY"
	OwnerTypeConsultant = "CONSULTANT"
)

// Account statuses
const (
	AccountStatusActive = "ACTIVE"
	AccountStatusFrozen = "FROZEN"
)

// Transaction directions
const (
	DirectionCredit = "CREDIT"
	DirectionDebit  = "DEBIT"
)

// Transaction types
const (
	TxTypeCommissionEarned      = "COMMISSION_EARNED"
	TxTypeCommissionWithdrawal  = "COMMISSION_WITHDRAWAL"
	TxTypeJobPostingDeduction   = "JOB_POSTING_DEDUCTION"
	TxTypeSubscriptionDeduction = "SUBSCRIPTION_DEDUCTION"
	TxTypeJobRefund             = "JOB_REFUND"
	TxTypeSubscriptionRefund    = "SUBSCRIPTION_REFUND"
	TxTypeTransferIn            = "TRANSFER_IN"
	TxTypeTransferOut           = "TRANSFER_OUT"
	TxTypeAdminAdjustment       = "ADMIN_ADJUSTMENT"
	TxTypeCompensation          = "COMPENSATION"
)

// Reference types linking a ledger entry to the business object that caused it
const (
	RefTypeJobPayment       = "JOB_PAYMENT"
	RefTypeSubscriptionBill = "SUBSCRIPTION_BILL"
	RefTypeCommission       = "COMMISSION"
	RefTypeWithdrawal       = "COMMISSION_WITHDRAWAL"
	RefTypeRefundRequest    = "REFUND_REQUEST"
	RefTypeCheckoutSession  = "CHECKOUT_SESSION"
)

// VirtualAccount is the wallet for one company or consultant. All amounts are
// in cents. Invariant: Balance == TotalCredits - TotalDebits at all times.
type VirtualAccount struct {
	ID           int64     `json:"id" db:"id"`
	OwnerType    string    `json:"owner_type" db:"owner_type"`
	OwnerID      int64     `json:"owner_id" db:"owner_id"`
	Balance      int64     `json:"balance" db:"balance"`
	TotalCredits int64     `json:"total_credits" db:"total_credits"`
	TotalDebits  int64     `json:"total_debits" db:"total_debits"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// VirtualTransaction is an append-only ledger entry. Entries are never edited;
// corrections are new entries in the opposite direction.
type VirtualTransaction struct {
	ID            int64     `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	AccountID     int64     `json:"account_id" db:"account_id"`
	Type          string    `json:"type" db:"type"`
	Amount        int64     `json:"amount" db:"amount"`
	Direction     string    `json:"direction" db:"direction"`
	BalanceAfter  int64     `json:"balance_after" db:"balance_after"`
	ReferenceType string    `json:"reference_type,omitempty" db:"reference_type"`
	ReferenceID   int64     `json:"reference_id,omitempty" db:"reference_id"`
	Status        string    `json:"status" db:"status"`
	Description   string    `json:"description" db:"description"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// TransactionFilter narrows GetTransactions queries.
type TransactionFilter struct {
	AccountID     int64
	Direction     string
	Type          string
	ReferenceType string
	Limit         int
}
