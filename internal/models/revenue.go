package models

import (
	"time"
)

// Revenue and settlement statuses
const (
	RevenueStatusPending = "PENDING"
	RevenueStatusPaid    = "PAID"

	SettlementStatusPending = "PENDING"
	SettlementStatusPaid    = "PAID"
)

// RegionalRevenue aggregates paid revenue for one region over one calendar
// month. One row per (region, month); recomputed in place while PENDING and
// frozen once PAID.
type RegionalRevenue struct {
	ID            int64     `json:"id" db:"id"`
	RegionID      int64     `json:"region_id" db:"region_id"`
	LicenseeID    *int64    `json:"licensee_id,omitempty" db:"licensee_id"`
	PeriodStart   time.Time `json:"period_start" db:"period_start"`
	PeriodEnd     time.Time `json:"period_end" db:"period_end"`
	TotalRevenue  int64     `json:"total_revenue" db:"total_revenue"`
	LicenseeShare int64     `json:"licensee_share" db:"licensee_share"`
	PlatformShare int64     `json:"platform_share" db:"platform_share"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Settlement batches a licensee's pending revenue rows into one payable amount.
type Settlement struct {
	ID               int64      `json:"id" db:"id"`
	LicenseeID       int64      `json:"licensee_id" db:"licensee_id"`
	Reference        string     `json:"reference" db:"reference"`
	RevenueIDs       []int64    `json:"revenue_ids" db:"revenue_ids"`
	TotalAmount      int64      `json:"total_amount" db:"total_amount"`
	Status           string     `json:"status" db:"status"`
	PaymentReference string     `json:"payment_reference,omitempty" db:"payment_reference"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty" db:"paid_at"`
}

// Region carries the licensee revenue-share terms used by the monthly job.
type Region struct {
	ID               int64   `json:"id" db:"id"`
	Name             string  `json:"name" db:"name"`
	LicenseeID       *int64  `json:"licensee_id,omitempty" db:"licensee_id"`
	LicenseeSharePct float64 `json:"licensee_share_pct" db:"licensee_share_pct"`
	Active           bool    `json:"active" db:"active"`
}

// BatchResult tallies a partial-failure-tolerant batch run.
type BatchResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}
