package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/talenthub/backend/internal/models"
)

// RefundService runs the two-phase refund workflow: a company requests a
// refund against a paid job payment or subscription bill, an admin approves
// or rejects it, and the company then claims the approved refund. Only the
// claim step moves money, through Ledger Core.
type RefundService struct {
	db        *sql.DB
	ledger    *LedgerService
	notifier  *NotificationService
	validator *ValidationHelper
}

func NewRefundService(db *sql.DB, ledger *LedgerService, notifier *NotificationService) *RefundService {
	return &RefundService{
		db:        db,
		ledger:    ledger,
		notifier:  notifier,
		validator: NewValidationHelper(),
	}
}

// CreateRefundRequest validates the source transaction and opens a PENDING
// refund request. Exactly one non-rejected request may exist per source
// transaction, so a refund already in flight surfaces as ErrDuplicateRequest.
func (rf *RefundService) CreateRefundRequest(companyID, transactionID int64, transactionType string, amount int64, reason string) (*models.RefundRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(reason) < 10 {
		return nil, &DomainError{CodeInvalidAmount, "reason must be at least 10 characters"}
	}
	if transactionType != models.RefundSourceJobPayment && transactionType != models.RefundSourceSubscriptionBill {
		return nil, &DomainError{CodeInvalidAmount, "unknown transaction type"}
	}

	paidAmount, err := rf.lookupPaidAmount(companyID, transactionID, transactionType)
	if err != nil {
		return nil, err
	}
	if amount > paidAmount {
		return nil, &DomainError{CodeInvalidAmount, "refund amount exceeds original paid amount"}
	}

	var existing int64
	err = rf.db.QueryRow(`
		SELECT COUNT(*) FROM refund_requests
		WHERE transaction_id = $1 AND transaction_type = $2 AND status != 'REJECTED'`,
		transactionID, transactionType).Scan(&existing)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDuplicateRequest
	}

	request := &models.RefundRequest{
		CompanyID:       companyID,
		TransactionID:   transactionID,
		TransactionType: transactionType,
		Amount:          amount,
		Reason:          reason,
		Status:          models.RefundStatusPending,
		CreatedAt:       time.Now(),
	}

	err = rf.db.QueryRow(`
		INSERT INTO refund_requests (company_id, transaction_id, transaction_type, amount, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'PENDING', $6)
		RETURNING id`,
		companyID, transactionID, transactionType, amount, reason, request.CreatedAt).Scan(&request.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}

	log.Printf("[REFUND] Company %d requested refund %d of %d cents against %s %d",
		companyID, request.ID, amount, transactionType, transactionID)
	if rf.notifier != nil {
		go rf.notifier.RefundEvent(companyID, amount, "REQUESTED")
	}
	return request, nil
}

// ApproveRefund authorizes the refund without moving funds. The credit
// happens later when the company claims it.
func (rf *RefundService) ApproveRefund(refundID, adminID int64) error {
	return rf.decide(refundID, adminID, models.RefundStatusApproved, "")
}

// RejectRefund closes the request with the admin's reason.
func (rf *RefundService) RejectRefund(refundID, adminID int64, reason string) error {
	return rf.decide(refundID, adminID, models.RefundStatusRejected, reason)
}

func (rf *RefundService) decide(refundID, adminID int64, newStatus, rejectReason string) error {
	tx, err := rf.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var companyID, amount int64
	var status string
	err = tx.QueryRow(`
		SELECT company_id, amount, status FROM refund_requests WHERE id = $1 FOR UPDATE`,
		refundID).Scan(&companyID, &amount, &status)
	if err == sql.ErrNoRows {
		return &DomainError{CodeInvalidStateTransition, "refund request not found"}
	}
	if err != nil {
		return err
	}
	if status != models.RefundStatusPending {
		return invalidTransitionError(status, newStatus)
	}

	_, err = tx.Exec(`
		UPDATE refund_requests
		SET status = $1, processed_by = $2, reject_reason = $3, processed_at = $4
		WHERE id = $5`,
		newStatus, adminID, rejectReason, time.Now(), refundID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[REFUND] Refund %d %s by admin %d", refundID, newStatus, adminID)
	if rf.notifier != nil {
		go rf.notifier.RefundEvent(companyID, amount, newStatus)
	}
	return nil
}

// WithdrawRefund is the company's claim of an approved refund. Marking the
// request COMPLETED and crediting the wallet commit together, so a claim can
// never credit twice: the second attempt finds the request already COMPLETED.
func (rf *RefundService) WithdrawRefund(refundID, companyID int64) error {
	tx, err := rf.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owner, amount int64
	var status, transactionType string
	err = tx.QueryRow(`
		SELECT company_id, amount, status, transaction_type FROM refund_requests WHERE id = $1 FOR UPDATE`,
		refundID).Scan(&owner, &amount, &status, &transactionType)
	if err == sql.ErrNoRows {
		return &DomainError{CodeInvalidStateTransition, "refund request not found"}
	}
	if err != nil {
		return err
	}
	if owner != companyID {
		return &DomainError{CodeInvalidStateTransition, "refund request belongs to another company"}
	}
	if status != models.RefundStatusApproved {
		return invalidTransitionError(status, models.RefundStatusCompleted)
	}

	_, err = tx.Exec(`
		UPDATE refund_requests SET status = 'COMPLETED', completed_at = $1 WHERE id = $2`,
		time.Now(), refundID)
	if err != nil {
		return err
	}

	account, err := rf.ledger.GetOrCreateAccount(models.OwnerTypeCompany, companyID)
	if err != nil {
		return err
	}

	txType := models.TxTypeJobRefund
	if transactionType == models.RefundSourceSubscriptionBill {
		txType = models.TxTypeSubscriptionRefund
	}
	_, err = rf.ledger.CreditTx(tx, account.ID, amount, txType,
		"Refund claim", &LedgerRef{Type: models.RefTypeRefundRequest, ID: refundID})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[REFUND] Refund %d claimed: credited %d cents to company %d", refundID, amount, companyID)
	if rf.notifier != nil {
		go rf.notifier.RefundEvent(companyID, amount, "COMPLETED")
	}
	return nil
}

// lookupPaidAmount verifies the source transaction exists, belongs to the
// company, and has actually been paid, returning the paid amount.
func (rf *RefundService) lookupPaidAmount(companyID, transactionID int64, transactionType string) (int64, error) {
	table := "job_payments"
	if transactionType == models.RefundSourceSubscriptionBill {
		table = "subscription_bills"
	}

	var amount int64
	var status string
	err := rf.db.QueryRow(`
		SELECT amount, status FROM `+table+` WHERE id = $1 AND company_id = $2`,
		transactionID, companyID).Scan(&amount, &status)
	if err == sql.ErrNoRows {
		return 0, &DomainError{CodeExternalConfirmationMismatch, "source transaction not found for company"}
	}
	if err != nil {
		return 0, err
	}
	if status != "PAID" {
		return 0, &DomainError{CodeInvalidStateTransition, "source transaction is not paid"}
	}

	return amount, nil
}

// HTTP handlers

type refundRequestBody struct {
	TransactionID   int64  `json:"transaction_id" validate:"required"`
	TransactionType string `json:"transaction_type" validate:"required,oneof=JOB_PAYMENT SUBSCRIPTION_BILL"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	Reason          string `json:"reason" validate:"required,min=10"`
}

// CreateRefundRequestHandler opens a refund request for the calling company
// @Summary Request a refund against a paid transaction
// @Tags refunds
// @Accept json
// @Produce json
// @Param request body refundRequestBody true "Refund request"
// @Success 201 {object} models.RefundRequest
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /refunds [post]
func (rf *RefundService) CreateRefundRequestHandler(w http.ResponseWriter, r *http.Request) {
	companyID, ok := subjectID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var body refundRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := rf.validator.ValidateStruct(&body); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	request, err := rf.CreateRefundRequest(companyID, body.TransactionID, body.TransactionType, body.Amount, body.Reason)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

// DecideRefundHandler approves or rejects a pending refund
// @Summary Approve or reject a refund request
// @Tags refunds
// @Accept json
// @Produce json
// @Param refundId path int true "Refund request ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} ErrorResponse
// @Router /refunds/{refundId}/decision [post]
func (rf *RefundService) DecideRefundHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := subjectID(r)
	if !ok || subjectRole(r) != "ADMIN" {
		SendErrorResponse(w, "Admin access required", http.StatusForbidden, nil)
		return
	}

	refundID, err := strconv.ParseInt(chi.URLParam(r, "refundId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid refund id", http.StatusBadRequest, nil)
		return
	}

	var body struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if body.Approve {
		err = rf.ApproveRefund(refundID, adminID)
	} else {
		err = rf.RejectRefund(refundID, adminID, body.Reason)
	}
	if err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "decided"})
}

// WithdrawRefundHandler lets the company claim an approved refund
// @Summary Claim an approved refund into the company wallet
// @Tags refunds
// @Produce json
// @Param refundId path int true "Refund request ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} ErrorResponse
// @Router /refunds/{refundId}/withdraw [post]
func (rf *RefundService) WithdrawRefundHandler(w http.ResponseWriter, r *http.Request) {
	companyID, ok := subjectID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	refundID, err := strconv.ParseInt(chi.URLParam(r, "refundId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid refund id", http.StatusBadRequest, nil)
		return
	}

	if err := rf.WithdrawRefund(refundID, companyID); err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "completed"})
}
