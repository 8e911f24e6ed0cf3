package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/talenthub/backend/internal/models"
)

// CommissionService turns business events into commission records and
// consultant payouts. All fund movement goes through the ledger.
type CommissionService struct {
	db            *sql.DB
	ledger        *LedgerService
	notifier      *NotificationService
	validator     *ValidationHelper
	minWithdrawal int64
}

// minWithdrawal is in cents; zero disables the floor.
func NewCommissionService(db *sql.DB, ledger *LedgerService, notifier *NotificationService, minWithdrawal int64) *CommissionService {
	return &CommissionService{
		db:            db,
		ledger:        ledger,
		notifier:      notifier,
		validator:     NewValidationHelper(),
		minWithdrawal: minWithdrawal,
	}
}

// AwardCommission creates a CONFIRMED commission row and credits the
// consultant's wallet in one unit of work: if either half fails, neither is
// applied. Replayed events collide on the commission row's unique
// (consultant, type, reference) key and surface as DuplicateRequest.
func (cs *CommissionService) AwardCommission(consultantID, regionID, amount int64, commissionType string, ref *LedgerRef) (*models.Commission, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := cs.ledger.GetOrCreateAccount(models.OwnerTypeConsultant, consultantID)
	if err != nil {
		return nil, err
	}

	tx, err := cs.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	commission := &models.Commission{
		ConsultantID: consultantID,
		RegionID:     regionID,
		Type:         commissionType,
		Amount:       amount,
		Status:       models.CommissionStatusConfirmed,
		CreatedAt:    time.Now(),
	}

	var refType, refID interface{}
	if ref != nil {
		commission.ReferenceType = ref.Type
		commission.ReferenceID = ref.ID
		refType, refID = ref.Type, ref.ID
	}

	err = tx.QueryRow(`
		INSERT INTO commissions (consultant_id, region_id, type, amount, status, reference_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		consultantID, regionID, commissionType, amount, commission.Status,
		refType, refID, commission.CreatedAt).Scan(&commission.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}

	_, err = cs.ledger.CreditTx(tx, account.ID, amount, models.TxTypeCommissionEarned,
		"Commission earned", &LedgerRef{Type: models.RefTypeCommission, ID: commission.ID})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[COMMISSION] Awarded %s commission %d of %d cents to consultant %d", commissionType, commission.ID, amount, consultantID)
	go cs.notifier.CommissionEarned(consultantID, amount)

	return commission, nil
}

// RequestWithdrawal validates the amount against the consultant's live wallet
// balance and records a PENDING withdrawal covering the oldest outstanding
// CONFIRMED commissions. The selection is advisory bookkeeping only; funds
// move at approval time.
func (cs *CommissionService) RequestWithdrawal(consultantID, amount int64, method, details string) (*models.CommissionWithdrawal, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount < cs.minWithdrawal {
		return nil, &DomainError{CodeInvalidAmount,
			fmt.Sprintf("withdrawal amount below the minimum of %d cents", cs.minWithdrawal)}
	}

	account, err := cs.ledger.GetOrCreateAccount(models.OwnerTypeConsultant, consultantID)
	if err != nil {
		return nil, err
	}
	if account.Balance < amount {
		return nil, insufficientBalanceError(account.Balance, amount)
	}

	commissionIDs, err := cs.selectCoveringCommissions(consultantID, amount)
	if err != nil {
		return nil, err
	}

	withdrawal := &models.CommissionWithdrawal{
		ConsultantID:   consultantID,
		Amount:         amount,
		Status:         models.WithdrawalStatusPending,
		CommissionIDs:  commissionIDs,
		PaymentMethod:  method,
		PaymentDetails: details,
		CreatedAt:      time.Now(),
	}

	err = cs.db.QueryRow(`
		INSERT INTO commission_withdrawals (consultant_id, amount, status, commission_ids, payment_method, payment_details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		consultantID, amount, withdrawal.Status, pq.Array(commissionIDs),
		method, details, withdrawal.CreatedAt).Scan(&withdrawal.ID)
	if err != nil {
		return nil, err
	}

	log.Printf("[COMMISSION] Withdrawal %d requested by consultant %d for %d cents covering %d commissions",
		withdrawal.ID, consultantID, amount, len(commissionIDs))
	return withdrawal, nil
}

// ApproveWithdrawal re-validates PENDING status and balance inside the atomic
// unit, debits the wallet for exactly the requested amount, marks the covered
// commissions PAID and updates the consultant's running totals.
func (cs *CommissionService) ApproveWithdrawal(withdrawalID, adminID int64, paymentReference string) error {
	tx, err := cs.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	withdrawal, err := cs.lockWithdrawal(tx, withdrawalID)
	if err != nil {
		return err
	}
	if withdrawal.Status != models.WithdrawalStatusPending {
		return invalidTransitionError(withdrawal.Status, models.WithdrawalStatusApproved)
	}

	var accountID int64
	err = tx.QueryRow(`
		SELECT id FROM virtual_accounts WHERE owner_type = 'CONSULTANT' AND owner_id = $1`,
		withdrawal.ConsultantID).Scan(&accountID)
	if err == sql.ErrNoRows {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}

	// Balance may have dropped since the request; the debit re-checks it
	// under the row lock.
	_, err = cs.ledger.DebitTx(tx, accountID, withdrawal.Amount, models.TxTypeCommissionWithdrawal,
		"Commission withdrawal payout", &LedgerRef{Type: models.RefTypeWithdrawal, ID: withdrawalID})
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE commission_withdrawals
		SET status = 'APPROVED', processed_by = $1, payment_reference = $2, processed_at = $3
		WHERE id = $4`,
		adminID, paymentReference, time.Now(), withdrawalID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE commissions
		SET status = 'PAID', paid_at = $1
		WHERE id = ANY($2) AND status = 'CONFIRMED'`,
		time.Now(), pq.Array(withdrawal.CommissionIDs))
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE consultants
		SET commission_pending = GREATEST(commission_pending - $1, 0),
		    commission_paid = commission_paid + $1
		WHERE id = $2`,
		withdrawal.Amount, withdrawal.ConsultantID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[COMMISSION] Withdrawal %d approved by admin %d, ref %s", withdrawalID, adminID, paymentReference)
	go cs.notifier.WithdrawalDecided(withdrawal.ConsultantID, withdrawal.Amount, models.WithdrawalStatusApproved)
	return nil
}

// RejectWithdrawal is a pure status transition with no ledger effect.
func (cs *CommissionService) RejectWithdrawal(withdrawalID, adminID int64, reason string) error {
	tx, err := cs.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	withdrawal, err := cs.lockWithdrawal(tx, withdrawalID)
	if err != nil {
		return err
	}
	if withdrawal.Status != models.WithdrawalStatusPending {
		return invalidTransitionError(withdrawal.Status, models.WithdrawalStatusRejected)
	}

	_, err = tx.Exec(`
		UPDATE commission_withdrawals
		SET status = 'REJECTED', processed_by = $1, reason = $2, processed_at = $3
		WHERE id = $4`,
		adminID, reason, time.Now(), withdrawalID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[COMMISSION] Withdrawal %d rejected by admin %d: %s", withdrawalID, adminID, reason)
	go cs.notifier.WithdrawalDecided(withdrawal.ConsultantID, withdrawal.Amount, models.WithdrawalStatusRejected)
	return nil
}

// selectCoveringCommissions picks outstanding CONFIRMED commissions oldest
// first until their cumulative amount covers the requested amount. When the
// outstanding total falls short the full set is returned; the request is
// validated against the wallet balance, not the commission ledger.
func (cs *CommissionService) selectCoveringCommissions(consultantID, amount int64) ([]int64, error) {
	rows, err := cs.db.Query(`
		SELECT id, amount FROM commissions
		WHERE consultant_id = $1 AND status = 'CONFIRMED'
		ORDER BY created_at ASC`,
		consultantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	var covered int64
	for rows.Next() {
		var id, commissionAmount int64
		if err := rows.Scan(&id, &commissionAmount); err != nil {
			return nil, err
		}
		if covered >= amount {
			break
		}
		ids = append(ids, id)
		covered += commissionAmount
	}

	return ids, rows.Err()
}

func (cs *CommissionService) lockWithdrawal(tx *sql.Tx, withdrawalID int64) (*models.CommissionWithdrawal, error) {
	withdrawal := &models.CommissionWithdrawal{ID: withdrawalID}
	var commissionIDs pq.Int64Array
	err := tx.QueryRow(`
		SELECT consultant_id, amount, status, commission_ids
		FROM commission_withdrawals
		WHERE id = $1
		FOR UPDATE`,
		withdrawalID).Scan(&withdrawal.ConsultantID, &withdrawal.Amount, &withdrawal.Status, &commissionIDs)
	if err == sql.ErrNoRows {
		return nil, &DomainError{CodeInvalidStateTransition, "withdrawal not found"}
	}
	if err != nil {
		return nil, err
	}
	withdrawal.CommissionIDs = commissionIDs
	return withdrawal, nil
}

// HTTP handlers

type withdrawalRequest struct {
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	PaymentMethod  string `json:"payment_method" validate:"required,oneof=BANK_TRANSFER PAYPAL"`
	PaymentDetails string `json:"payment_details" validate:"required,max=500"`
}

// RequestWithdrawalHandler creates a withdrawal request for the authenticated consultant
// @Summary Request a commission withdrawal
// @Description Validates the amount against the wallet balance and records a pending withdrawal
// @Tags commissions
// @Accept json
// @Produce json
// @Param request body withdrawalRequest true "Withdrawal request"
// @Success 201 {object} models.CommissionWithdrawal
// @Failure 400 {object} ErrorResponse
// @Router /commissions/withdrawals [post]
func (cs *CommissionService) RequestWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	consultantID, ok := subjectID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req withdrawalRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1_048_576))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := cs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	withdrawal, err := cs.RequestWithdrawal(consultantID, req.Amount, req.PaymentMethod, req.PaymentDetails)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(withdrawal)
}

type withdrawalDecision struct {
	PaymentReference string `json:"payment_reference"`
	Reason           string `json:"reason"`
}

// ApproveWithdrawalHandler approves a pending withdrawal
// @Summary Approve a commission withdrawal
// @Description Debits the consultant wallet and marks covered commissions paid
// @Tags commissions
// @Accept json
// @Produce json
// @Param withdrawalId path int true "Withdrawal ID"
// @Param decision body withdrawalDecision true "Approval details"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /commissions/withdrawals/{withdrawalId}/approve [post]
func (cs *CommissionService) ApproveWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := subjectID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	withdrawalID, err := strconv.ParseInt(chi.URLParam(r, "withdrawalId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid withdrawal id", http.StatusBadRequest, nil)
		return
	}

	var req withdrawalDecision
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := cs.ApproveWithdrawal(withdrawalID, adminID, req.PaymentReference); err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "approved"})
}

// RejectWithdrawalHandler rejects a pending withdrawal
// @Summary Reject a commission withdrawal
// @Tags commissions
// @Accept json
// @Produce json
// @Param withdrawalId path int true "Withdrawal ID"
// @Param decision body withdrawalDecision true "Rejection reason"
// @Success 200 {object} map[string]string
// @Failure 409 {object} ErrorResponse
// @Router /commissions/withdrawals/{withdrawalId}/reject [post]
func (cs *CommissionService) RejectWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := subjectID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	withdrawalID, err := strconv.ParseInt(chi.URLParam(r, "withdrawalId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid withdrawal id", http.StatusBadRequest, nil)
		return
	}

	var req withdrawalDecision
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if req.Reason == "" {
		SendErrorResponse(w, "Rejection reason is required", http.StatusBadRequest, nil)
		return
	}

	if err := cs.RejectWithdrawal(withdrawalID, adminID, req.Reason); err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "rejected"})
}
