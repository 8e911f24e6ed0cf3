package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/talenthub/backend/internal/models"
	"github.com/talenthub/backend/internal/services"
)

// WalletHandler exposes the ledger's read and admin surface: balances,
// transaction history, integrity checks, transfers, adjustments and
// wallet-funded purchases.
type WalletHandler struct {
	ledger     *services.LedgerService
	reconciler *services.ReconciliationService
	validator  *services.ValidationHelper
}

func NewWalletHandler(ledger *services.LedgerService, reconciler *services.ReconciliationService) *WalletHandler {
	return &WalletHandler{
		ledger:     ledger,
		reconciler: reconciler,
		validator:  services.NewValidationHelper(),
	}
}

// GetBalance returns the wallet for an owner
// @Summary Get wallet balance
// @Description Get or create the wallet for an owner and return its balance
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param ownerType query string true "Owner type" Enums(COMPANY, CONSULTANT)
// @Param ownerId query int true "Owner ID"
// @Success 200 {object} models.VirtualAccount
// @Failure 400 {object} services.ErrorResponse
// @Router /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerType := r.URL.Query().Get("ownerType")
	ownerID, err := strconv.ParseInt(r.URL.Query().Get("ownerId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid owner id", http.StatusBadRequest, nil)
		return
	}

	account, err := h.ledger.GetOrCreateAccount(ownerType, ownerID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// ListTransactions returns ledger entries for an account
// @Summary List wallet transactions
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Account ID"
// @Param direction query string false "Filter by direction" Enums(CREDIT, DEBIT)
// @Param type query string false "Filter by transaction type"
// @Param limit query int false "Maximum entries to return"
// @Success 200 {array} models.VirtualTransaction
// @Failure 400 {object} services.ErrorResponse
// @Router /wallet/{accountId}/transactions [get]
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transactions, err := h.ledger.GetTransactions(models.TransactionFilter{
		AccountID: accountID,
		Direction: r.URL.Query().Get("direction"),
		Type:      r.URL.Query().Get("type"),
		Limit:     limit,
	})
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// VerifyIntegrity recomputes an account's balance from its entries
// @Summary Verify account integrity
// @Description Recompute total credits minus total debits and compare to the stored balance
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Account ID"
// @Success 200 {object} services.IntegrityReport
// @Failure 500 {object} services.ErrorResponse
// @Router /wallet/{accountId}/integrity [get]
func (h *WalletHandler) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	report, err := h.ledger.VerifyIntegrity(accountID)
	if report == nil && err != nil {
		services.SendDomainError(w, err)
		return
	}

	// A mismatch still returns the report; the status code carries the alarm.
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusConflict)
	}
	json.NewEncoder(w).Encode(report)
}

type transferRequest struct {
	FromAccountID int64  `json:"from_account_id" validate:"required"`
	ToAccountID   int64  `json:"to_account_id" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Description   string `json:"description"`
}

// Transfer moves funds between two wallets
// @Summary Transfer between wallets
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body transferRequest true "Transfer request"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /wallet/transfer [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.ledger.Transfer(req.FromAccountID, req.ToAccountID, req.Amount, req.Description, nil)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "transferred"})
}

type walletPurchaseRequest struct {
	Purpose  string `json:"purpose" validate:"required,oneof=JOB_PAYMENT SUBSCRIPTION"`
	ObjectID int64  `json:"object_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
}

// WalletPurchase funds a job payment or subscription from the wallet
// @Summary Pay for a job or subscription from the wallet
// @Description Debits the company wallet and settles the business object, compensating on failure
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body walletPurchaseRequest true "Purchase request"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /wallet/purchase [post]
func (h *WalletHandler) WalletPurchase(w http.ResponseWriter, r *http.Request) {
	companyID, ok := r.Context().Value("userID").(int64)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req walletPurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.reconciler.PurchaseWithWallet(companyID, req.Purpose, req.ObjectID, req.Amount)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "paid"})
}

func (h *WalletHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}

	return true
}
