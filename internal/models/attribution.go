package models

import (
	"time"
)

// Attribution audit actions
const (
	AttributionActionLock     = "LOCK"
	AttributionActionOverride = "OVERRIDE"
)

// Attribution is the sales-ownership state of a company. The lock is one-way
// except through an explicit admin override, which always carries a reason.
type Attribution struct {
	CompanyID    int64      `json:"company_id" db:"company_id"`
	ConsultantID int64      `json:"consultant_id" db:"consultant_id"`
	Locked       bool       `json:"locked" db:"locked"`
	LockedAt     *time.Time `json:"locked_at,omitempty" db:"locked_at"`
}

// AttributionAudit is one immutable entry in a company's attribution history.
type AttributionAudit struct {
	ID            int64     `json:"id" db:"id"`
	CompanyID     int64     `json:"company_id" db:"company_id"`
	Action        string    `json:"action" db:"action"`
	ActorID       int64     `json:"actor_id" db:"actor_id"`
	PreviousOwner int64     `json:"previous_owner" db:"previous_owner"`
	NewOwner      int64     `json:"new_owner" db:"new_owner"`
	Reason        string    `json:"reason" db:"reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
