package models

import (
	"time"
)

// Checkout session statuses as reported by the payment provider.
const (
	CheckoutStatusCreated   = "CREATED"
	CheckoutStatusConfirmed = "CONFIRMED"
	CheckoutStatusFailed    = "FAILED"
)

// Checkout purposes carried in the session metadata so the eventual
// confirmation can be correlated back to a business object.
const (
	CheckoutPurposeJobPayment   = "JOB_PAYMENT"
	CheckoutPurposeSubscription = "SUBSCRIPTION"
)

// CheckoutSession is a payment-provider checkout created for a company.
type CheckoutSession struct {
	ID          int64     `json:"id" db:"id"`
	SessionID   string    `json:"session_id" db:"session_id"`
	CompanyID   int64     `json:"company_id" db:"company_id"`
	Purpose     string    `json:"purpose" db:"purpose"`
	ObjectID    int64     `json:"object_id" db:"object_id"`
	Amount      int64     `json:"amount" db:"amount"`
	Currency    string    `json:"currency" db:"currency"`
	CheckoutURL string    `json:"checkout_url" db:"checkout_url"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PaymentEvent is the provider's confirmation or failure callback payload.
type PaymentEvent struct {
	SessionID string `json:"session_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Currency  string `json:"currency" validate:"required,len=3"`
	Purpose   string `json:"purpose" validate:"required,oneof=JOB_PAYMENT SUBSCRIPTION"`
	ObjectID  int64  `json:"object_id" validate:"required"`
	CompanyID int64  `json:"company_id" validate:"required"`
	Signature string `json:"signature,omitempty"`
}
