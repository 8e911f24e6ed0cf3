package services

import (
	"database/sql"
	"log"
	"time"

	"github.com/talenthub/backend/internal/models"
)

// AttributionService decides which consultant owns a company for commission
// purposes and keeps the immutable audit trail of LOCK/OVERRIDE actions. It is
// a pure read/audit service: it never calls into the commission engine.
type AttributionService struct {
	db *sql.DB
}

func NewAttributionService(db *sql.DB) *AttributionService {
	return &AttributionService{db: db}
}

// GetAttribution resolves the effective sales owner: the current account-team
// assignment when present, otherwise the company's original creator.
func (as *AttributionService) GetAttribution(companyID int64) (*models.Attribution, error) {
	attribution := &models.Attribution{CompanyID: companyID}
	var assigned sql.NullInt64
	var lockedAt sql.NullTime

	err := as.db.QueryRow(`
		SELECT COALESCE(sales_owner_id, 0), created_by, attribution_locked, attribution_locked_at
		FROM companies
		WHERE id = $1`,
		companyID).Scan(&assigned.Int64, &attribution.ConsultantID, &attribution.Locked, &lockedAt)
	if err == sql.ErrNoRows {
		return nil, &DomainError{CodeExternalConfirmationMismatch, "company not found"}
	}
	if err != nil {
		return nil, err
	}

	if assigned.Int64 != 0 {
		attribution.ConsultantID = assigned.Int64
	}
	if lockedAt.Valid {
		attribution.LockedAt = &lockedAt.Time
	}

	return attribution, nil
}

// LockAttribution is one-shot: it runs exactly once at lead-to-company
// conversion and fails if the company is already locked.
func (as *AttributionService) LockAttribution(companyID, actorID int64) error {
	tx, err := as.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owner int64
	var locked bool
	err = tx.QueryRow(`
		SELECT COALESCE(sales_owner_id, created_by), attribution_locked
		FROM companies
		WHERE id = $1
		FOR UPDATE`,
		companyID).Scan(&owner, &locked)
	if err == sql.ErrNoRows {
		return &DomainError{CodeExternalConfirmationMismatch, "company not found"}
	}
	if err != nil {
		return err
	}
	if locked {
		return &DomainError{CodeInvalidStateTransition, "attribution already locked"}
	}

	now := time.Now()
	_, err = tx.Exec(`
		UPDATE companies
		SET sales_owner_id = $1, attribution_locked = TRUE, attribution_locked_at = $2
		WHERE id = $3`,
		owner, now, companyID)
	if err != nil {
		return err
	}

	if err := as.appendAudit(tx, companyID, models.AttributionActionLock, actorID, owner, owner, "lead conversion"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[ATTRIBUTION] Company %d locked to consultant %d by %d", companyID, owner, actorID)
	return nil
}

// OverrideAttribution replaces the sales owner regardless of lock state. The
// lock guards against accidental re-attribution by normal flows, not against
// deliberate admin correction; the non-empty reason lands in the audit trail.
func (as *AttributionService) OverrideAttribution(companyID, newConsultantID, actorID int64, reason string) error {
	if reason == "" {
		return &DomainError{CodeInvalidAmount, "override reason is required"}
	}

	tx, err := as.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var previousOwner int64
	err = tx.QueryRow(`
		SELECT COALESCE(sales_owner_id, created_by)
		FROM companies
		WHERE id = $1
		FOR UPDATE`,
		companyID).Scan(&previousOwner)
	if err == sql.ErrNoRows {
		return &DomainError{CodeExternalConfirmationMismatch, "company not found"}
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE companies
		SET sales_owner_id = $1, attribution_locked = TRUE, attribution_locked_at = COALESCE(attribution_locked_at, $2)
		WHERE id = $3`,
		newConsultantID, time.Now(), companyID)
	if err != nil {
		return err
	}

	if err := as.appendAudit(tx, companyID, models.AttributionActionOverride, actorID, previousOwner, newConsultantID, reason); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[ATTRIBUTION] Company %d owner overridden %d -> %d by %d: %s", companyID, previousOwner, newConsultantID, actorID, reason)
	return nil
}

// IsCommissionEligible gates sales commissions: payable only when attribution
// is locked and the current owner is the consultant being credited. This is
// what stops commission leakage to a consultant who no longer owns the
// account.
func (as *AttributionService) IsCommissionEligible(companyID, consultantID int64) (bool, error) {
	attribution, err := as.GetAttribution(companyID)
	if err != nil {
		return false, err
	}
	return attribution.Locked && attribution.ConsultantID == consultantID, nil
}

// GetAuditTrail returns the immutable LOCK/OVERRIDE history, oldest first.
func (as *AttributionService) GetAuditTrail(companyID int64) ([]models.AttributionAudit, error) {
	rows, err := as.db.Query(`
		SELECT id, company_id, action, actor_id, previous_owner, new_owner, reason, created_at
		FROM attribution_audits
		WHERE company_id = $1
		ORDER BY created_at ASC`,
		companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AttributionAudit{}
	for rows.Next() {
		var entry models.AttributionAudit
		err := rows.Scan(&entry.ID, &entry.CompanyID, &entry.Action, &entry.ActorID,
			&entry.PreviousOwner, &entry.NewOwner, &entry.Reason, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (as *AttributionService) appendAudit(tx *sql.Tx, companyID int64, action string, actorID, previousOwner, newOwner int64, reason string) error {
	_, err := tx.Exec(`
		INSERT INTO attribution_audits (company_id, action, actor_id, previous_owner, new_owner, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		companyID, action, actorID, previousOwner, newOwner, reason, time.Now())
	return err
}
