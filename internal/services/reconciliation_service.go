package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/talenthub/backend/internal/models"
)

// ReconciliationService turns provider payment confirmations into business
// state: it marks jobs and subscription bills paid, publishes jobs, and awards
// the commissions derived from the same event. It also owns the compensation
// pattern for wallet-funded purchases.
type ReconciliationService struct {
	db          *sql.DB
	ledger      *LedgerService
	commissions *CommissionService
	attribution *AttributionService
}

func NewReconciliationService(db *sql.DB, ledger *LedgerService, commissions *CommissionService, attribution *AttributionService) *ReconciliationService {
	return &ReconciliationService{
		db:          db,
		ledger:      ledger,
		commissions: commissions,
		attribution: attribution,
	}
}

// ErrAlreadyProcessed signals a replayed confirmation. Callers treat it as
// success: the provider retries on timeout and expects a 2xx either way.
var ErrAlreadyProcessed = &DomainError{CodeDuplicateRequest, "payment event already processed"}

// ProcessPaymentConfirmed handles a provider "payment confirmed" webhook.
// Replays of the same session id are detected up front and no-op. A claim is
// only kept when the settlement went through: on any later failure it is
// released again, so the provider's retry is processed instead of dropped.
func (rc *ReconciliationService) ProcessPaymentConfirmed(event *models.PaymentEvent) (err error) {
	if err = rc.recordEvent(event.SessionID, "CONFIRMED"); err != nil {
		return err
	}
	defer func() {
		if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
			rc.releaseEvent(event.SessionID, "CONFIRMED")
		}
	}()

	session, err := rc.resolveSession(event)
	if err != nil {
		return err
	}

	switch session.Purpose {
	case models.CheckoutPurposeJobPayment:
		return rc.settleJobPayment(session)
	case models.CheckoutPurposeSubscription:
		return rc.settleSubscription(session)
	default:
		return ErrExternalConfirmationMismatch
	}
}

// ProcessPaymentFailed closes the session and its pending payment record.
func (rc *ReconciliationService) ProcessPaymentFailed(event *models.PaymentEvent) (err error) {
	if err = rc.recordEvent(event.SessionID, "FAILED"); err != nil {
		return err
	}
	defer func() {
		if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
			rc.releaseEvent(event.SessionID, "FAILED")
		}
	}()

	_, err = rc.db.Exec(`
		UPDATE checkout_sessions SET status = 'FAILED' WHERE session_id = $1`,
		event.SessionID)
	if err != nil {
		return err
	}

	log.Printf("[RECONCILE] Session %s reported failed", event.SessionID)
	return nil
}

// recordEvent claims the session id for processing. The unique constraint on
// (session_id, operation) is what makes webhook replays safe: the second
// insert fails and the whole handler no-ops.
func (rc *ReconciliationService) recordEvent(sessionID, operation string) error {
	_, err := rc.db.Exec(`
		INSERT INTO processed_payment_events (session_id, operation, created_at)
		VALUES ($1, $2, $3)`,
		sessionID, operation, time.Now())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			log.Printf("[RECONCILE] Session %s %s replayed, skipping", sessionID, operation)
			return ErrAlreadyProcessed
		}
		return err
	}
	return nil
}

// releaseEvent gives the claim back after a failed settlement. A claim that
// cannot be released turns future retries into silent drops, which is the same
// exposure as a failed compensation.
func (rc *ReconciliationService) releaseEvent(sessionID, operation string) {
	_, err := rc.db.Exec(`
		DELETE FROM processed_payment_events WHERE session_id = $1 AND operation = $2`,
		sessionID, operation)
	if err != nil {
		log.Printf("[ALERT] Failed to release event claim for session %s %s: %v", sessionID, operation, err)
	}
}

// resolveSession loads the stored session and cross-checks the webhook fields
// against it. Any disagreement means the confirmation does not belong to a
// known business object.
func (rc *ReconciliationService) resolveSession(event *models.PaymentEvent) (*models.CheckoutSession, error) {
	session := &models.CheckoutSession{}
	err := rc.db.QueryRow(`
		SELECT id, session_id, company_id, purpose, object_id, amount, currency, status
		FROM checkout_sessions
		WHERE session_id = $1`,
		event.SessionID).Scan(&session.ID, &session.SessionID, &session.CompanyID,
		&session.Purpose, &session.ObjectID, &session.Amount, &session.Currency, &session.Status)
	if err == sql.ErrNoRows {
		return nil, ErrExternalConfirmationMismatch
	}
	if err != nil {
		return nil, err
	}

	if event.Amount != session.Amount || event.Currency != session.Currency ||
		event.Purpose != session.Purpose || event.ObjectID != session.ObjectID {
		log.Printf("[ALERT] Session %s webhook fields disagree with stored session", event.SessionID)
		return nil, ErrExternalConfirmationMismatch
	}

	_, err = rc.db.Exec(`
		UPDATE checkout_sessions SET status = 'CONFIRMED' WHERE session_id = $1`,
		event.SessionID)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// settleJobPayment records the external charge on the job, publishes it, and
// awards both commissions derived from the event. The charge itself already
// happened at the provider, so no wallet debit occurs here.
func (rc *ReconciliationService) settleJobPayment(session *models.CheckoutSession) error {
	res, err := rc.db.Exec(`
		UPDATE job_payments SET status = 'PAID', paid_at = $1 WHERE id = $2 AND status != 'PAID'`,
		time.Now(), session.ObjectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Resuming after a partial failure: the payment row is already marked,
		// but publish and commissions may still be outstanding.
		log.Printf("[RECONCILE] Job payment %d already marked paid", session.ObjectID)
	}

	var jobID int64
	var consultantID sql.NullInt64
	var regionID int64
	err = rc.db.QueryRow(`
		SELECT p.job_id, j.consultant_id, c.region_id
		FROM job_payments p
		JOIN jobs j ON p.job_id = j.id
		JOIN companies c ON p.company_id = c.id
		WHERE p.id = $1`,
		session.ObjectID).Scan(&jobID, &consultantID, &regionID)
	if err == sql.ErrNoRows {
		return ErrExternalConfirmationMismatch
	}
	if err != nil {
		return err
	}

	_, err = rc.db.Exec(`
		UPDATE jobs SET status = 'PUBLISHED', published_at = $1 WHERE id = $2 AND status = 'DRAFT'`,
		time.Now(), jobID)
	if err != nil {
		return err
	}

	log.Printf("[RECONCILE] Job payment %d settled, job %d published", session.ObjectID, jobID)

	rc.awardJobCommissions(session, jobID, consultantID, regionID)
	return nil
}

// awardJobCommissions issues the assignment commission to the working
// consultant and the sales commission to the attributed account owner. Each
// award commits independently; a failed award is logged and retried from the
// admin console rather than failing the already-settled payment.
func (rc *ReconciliationService) awardJobCommissions(session *models.CheckoutSession, jobID int64, consultantID sql.NullInt64, regionID int64) {
	if consultantID.Valid {
		amount := commissionAmount(session.Amount, "commission.assignment_pct", 10)
		_, err := rc.commissions.AwardCommission(consultantID.Int64, regionID, amount,
			models.CommissionTypeJobAssignment,
			&LedgerRef{Type: models.RefTypeJobPayment, ID: session.ObjectID})
		if err != nil && !errors.Is(err, ErrDuplicateRequest) {
			log.Printf("[ALERT] Assignment commission for job payment %d failed: %v", session.ObjectID, err)
		}
	}

	attribution, err := rc.attribution.GetAttribution(session.CompanyID)
	if err != nil {
		log.Printf("[RECONCILE] No attribution for company %d: %v", session.CompanyID, err)
		return
	}

	eligible, err := rc.attribution.IsCommissionEligible(session.CompanyID, attribution.ConsultantID)
	if err != nil || !eligible {
		log.Printf("[RECONCILE] Sales commission skipped for company %d (eligible=%t, err=%v)",
			session.CompanyID, eligible, err)
		return
	}

	amount := commissionAmount(session.Amount, "commission.sales_pct", 5)
	_, err = rc.commissions.AwardCommission(attribution.ConsultantID, regionID, amount,
		models.CommissionTypeSalesConversion,
		&LedgerRef{Type: models.RefTypeJobPayment, ID: session.ObjectID})
	if err != nil && !errors.Is(err, ErrDuplicateRequest) {
		log.Printf("[ALERT] Sales commission for job payment %d failed: %v", session.ObjectID, err)
	}
}

// settleSubscription marks the bill paid and awards the subscription sale
// commission to the attributed consultant.
func (rc *ReconciliationService) settleSubscription(session *models.CheckoutSession) error {
	res, err := rc.db.Exec(`
		UPDATE subscription_bills SET status = 'PAID', paid_at = $1 WHERE id = $2 AND status != 'PAID'`,
		time.Now(), session.ObjectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("[RECONCILE] Subscription bill %d already marked paid", session.ObjectID)
	}

	var regionID int64
	err = rc.db.QueryRow(`
		SELECT region_id FROM companies WHERE id = $1`,
		session.CompanyID).Scan(&regionID)
	if err == sql.ErrNoRows {
		return ErrExternalConfirmationMismatch
	}
	if err != nil {
		return err
	}

	log.Printf("[RECONCILE] Subscription bill %d settled for company %d", session.ObjectID, session.CompanyID)

	attribution, err := rc.attribution.GetAttribution(session.CompanyID)
	if err != nil {
		log.Printf("[RECONCILE] No attribution for company %d: %v", session.CompanyID, err)
		return nil
	}

	eligible, err := rc.attribution.IsCommissionEligible(session.CompanyID, attribution.ConsultantID)
	if err != nil || !eligible {
		log.Printf("[RECONCILE] Subscription commission skipped for company %d (eligible=%t, err=%v)",
			session.CompanyID, eligible, err)
		return nil
	}

	amount := commissionAmount(session.Amount, "commission.subscription_pct", 10)
	_, err = rc.commissions.AwardCommission(attribution.ConsultantID, regionID, amount,
		models.CommissionTypeSubscriptionSale,
		&LedgerRef{Type: models.RefTypeSubscriptionBill, ID: session.ObjectID})
	if err != nil && !errors.Is(err, ErrDuplicateRequest) {
		log.Printf("[ALERT] Subscription commission for bill %d failed: %v", session.ObjectID, err)
	}
	return nil
}

// PurchaseWithWallet funds a job payment or subscription bill from the
// company wallet instead of the provider, using the compensated-debit helper.
func (rc *ReconciliationService) PurchaseWithWallet(companyID int64, purpose string, objectID, amount int64) error {
	account, err := rc.ledger.GetOrCreateAccount(models.OwnerTypeCompany, companyID)
	if err != nil {
		return err
	}

	var txType, refType string
	var sideEffect func() error
	switch purpose {
	case models.CheckoutPurposeJobPayment:
		txType = models.TxTypeJobPostingDeduction
		refType = models.RefTypeJobPayment
		sideEffect = func() error {
			session := &models.CheckoutSession{
				SessionID: fmt.Sprintf("wallet-%s-%d", refType, objectID),
				CompanyID: companyID,
				Purpose:   purpose,
				ObjectID:  objectID,
				Amount:    amount,
			}
			return rc.settleJobPayment(session)
		}
	case models.CheckoutPurposeSubscription:
		txType = models.TxTypeSubscriptionDeduction
		refType = models.RefTypeSubscriptionBill
		sideEffect = func() error {
			session := &models.CheckoutSession{
				SessionID: fmt.Sprintf("wallet-%s-%d", refType, objectID),
				CompanyID: companyID,
				Purpose:   purpose,
				ObjectID:  objectID,
				Amount:    amount,
			}
			return rc.settleSubscription(session)
		}
	default:
		return &DomainError{CodeInvalidAmount, "unknown purchase purpose"}
	}

	return rc.debitCompensated(account.ID, amount, txType,
		&LedgerRef{Type: refType, ID: objectID}, sideEffect)
}

// debitCompensated is the uniform saga helper for wallet-funded purchases:
// the debit commits on its own, then the business-state side effect runs, and
// any failure there, including a panic, triggers a compensating credit of the
// same amount back to the same account before the error is surfaced. The
// compensated debit also gives its (reference_type, reference_id, type) claim
// back, so the same purchase can be retried; the compensating credit carries
// no reference of its own for the same reason. A failed compensation is
// unrecovered financial exposure and is alerted loudly.
func (rc *ReconciliationService) debitCompensated(accountID, amount int64, txType string, ref *LedgerRef, sideEffect func() error) (err error) {
	entry, err := rc.ledger.Debit(accountID, amount, txType, "Wallet purchase", ref)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("side effect panicked: %v", r)
		}
		if err == nil {
			return
		}
		_, compErr := rc.ledger.Credit(accountID, amount, models.TxTypeCompensation,
			fmt.Sprintf("Compensation for failed purchase (%s %d)", ref.Type, ref.ID), nil)
		if compErr != nil {
			log.Printf("[ALERT] COMPENSATION FAILED: account %d, amount %d, ref %s %d: %v (original: %v)",
				accountID, amount, ref.Type, ref.ID, compErr, err)
			return
		}
		if relErr := rc.ledger.ReleaseReference(entry.ID); relErr != nil {
			log.Printf("[ALERT] Compensated entry %d still holds its reference claim, retries will be rejected: %v",
				entry.ID, relErr)
			return
		}
		log.Printf("[RECONCILE] Compensated account %d with %d cents after failed purchase: %v",
			accountID, amount, err)
	}()

	err = sideEffect()
	return err
}

// commissionAmount applies a configured percentage to the paid amount,
// rounding to whole cents.
func commissionAmount(paid int64, key string, defaultPct float64) int64 {
	pct := viper.GetFloat64(key)
	if pct == 0 {
		pct = defaultPct
	}
	return decimal.NewFromInt(paid).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0).IntPart()
}
