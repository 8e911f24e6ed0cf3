package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
	"github.com/talenthub/backend/internal/models"
)

// CheckoutService creates hosted checkout sessions with the external payment
// provider and polls their status. Confirmations normally arrive through the
// reconciliation webhook; polling exists as a fallback for missed callbacks.
type CheckoutService struct {
	db         *sql.DB
	baseURL    string
	apiKey     string
	webhookURL string
	client     *http.Client
}

func NewCheckoutService(db *sql.DB) *CheckoutService {
	baseURL := viper.GetString("provider.base_url")
	apiKey := viper.GetString("provider.api_key")
	webhookURL := viper.GetString("provider.webhook_url")

	if baseURL == "" || apiKey == "" {
		log.Println("WARNING: payment provider credentials not fully configured")
	}

	return &CheckoutService{
		db:         db,
		baseURL:    baseURL,
		apiKey:     apiKey,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type providerSessionRequest struct {
	Reference   string            `json:"reference"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	CallbackURL string            `json:"callback_url"`
	Metadata    map[string]string `json:"metadata"`
}

type providerSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// CreateSession opens a provider checkout for a job payment or subscription
// purchase. The metadata travels with the session so the webhook confirmation
// can be resolved back to the business object without server-side state.
func (cs *CheckoutService) CreateSession(companyID int64, purpose string, objectID, amount int64, currency string) (*models.CheckoutSession, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if purpose != models.CheckoutPurposeJobPayment && purpose != models.CheckoutPurposeSubscription {
		return nil, &DomainError{CodeInvalidAmount, "unknown checkout purpose"}
	}

	reference := uuid.New().String()
	resp, err := cs.callProvider("POST", "checkout/sessions", providerSessionRequest{
		Reference:   reference,
		Amount:      amount,
		Currency:    currency,
		CallbackURL: cs.webhookURL,
		Metadata: map[string]string{
			"purpose":    purpose,
			"object_id":  strconv.FormatInt(objectID, 10),
			"company_id": strconv.FormatInt(companyID, 10),
		},
	})
	if err != nil {
		return nil, err
	}

	session := &models.CheckoutSession{
		SessionID:   resp.SessionID,
		CompanyID:   companyID,
		Purpose:     purpose,
		ObjectID:    objectID,
		Amount:      amount,
		Currency:    currency,
		CheckoutURL: resp.CheckoutURL,
		Status:      models.CheckoutStatusCreated,
		CreatedAt:   time.Now(),
	}

	err = cs.db.QueryRow(`
		INSERT INTO checkout_sessions (session_id, company_id, purpose, object_id, amount, currency, checkout_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'CREATED', $8)
		RETURNING id`,
		session.SessionID, companyID, purpose, objectID, amount, currency,
		session.CheckoutURL, session.CreatedAt).Scan(&session.ID)
	if err != nil {
		return nil, err
	}

	log.Printf("[CHECKOUT] Session %s created for company %d: %s %d, %d cents",
		session.SessionID, companyID, purpose, objectID, amount)
	return session, nil
}

// VerifySession polls the provider for the current session status and syncs
// the local row. It reports status only; crediting is the reconciler's job.
func (cs *CheckoutService) VerifySession(sessionID string) (string, error) {
	resp, err := cs.callProvider("GET", "checkout/sessions/"+sessionID, nil)
	if err != nil {
		return "", err
	}

	status := models.CheckoutStatusCreated
	switch resp.Status {
	case "confirmed", "paid":
		status = models.CheckoutStatusConfirmed
	case "failed", "expired":
		status = models.CheckoutStatusFailed
	}

	_, err = cs.db.Exec(`
		UPDATE checkout_sessions SET status = $1 WHERE session_id = $2 AND status = 'CREATED'`,
		status, sessionID)
	if err != nil {
		return "", err
	}

	return status, nil
}

// GetSession loads a stored checkout session.
func (cs *CheckoutService) GetSession(sessionID string) (*models.CheckoutSession, error) {
	session := &models.CheckoutSession{}
	err := cs.db.QueryRow(`
		SELECT id, session_id, company_id, purpose, object_id, amount, currency, checkout_url, status, created_at
		FROM checkout_sessions
		WHERE session_id = $1`,
		sessionID).Scan(&session.ID, &session.SessionID, &session.CompanyID, &session.Purpose,
		&session.ObjectID, &session.Amount, &session.Currency, &session.CheckoutURL,
		&session.Status, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrExternalConfirmationMismatch
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GenerateQRCode renders the checkout URL as a PNG for in-person flows.
func (cs *CheckoutService) GenerateQRCode(sessionID string) ([]byte, error) {
	session, err := cs.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(session.CheckoutURL, qrcode.Medium, 256)
}

func (cs *CheckoutService) callProvider(method, endpoint string, payload interface{}) (*providerSessionResponse, error) {
	if cs.baseURL == "" || cs.apiKey == "" {
		return nil, fmt.Errorf("payment provider not configured")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, cs.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cs.apiKey)

	resp, err := cs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var providerResp providerSessionResponse
	if err := json.Unmarshal(respBody, &providerResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, providerResp.Error)
	}

	return &providerResp, nil
}

// HTTP handlers

type checkoutRequestBody struct {
	Purpose  string `json:"purpose" validate:"required,oneof=JOB_PAYMENT SUBSCRIPTION"`
	ObjectID int64  `json:"object_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"required,len=3"`
}

// CreateSessionHandler opens a checkout session for the calling company
// @Summary Create a payment provider checkout session
// @Tags checkout
// @Accept json
// @Produce json
// @Param request body checkoutRequestBody true "Checkout request"
// @Success 201 {object} models.CheckoutSession
// @Failure 400 {object} ErrorResponse
// @Router /checkout/sessions [post]
func (cs *CheckoutService) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	companyID, ok := subjectID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var body checkoutRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := NewValidationHelper().ValidateStruct(&body); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	session, err := cs.CreateSession(companyID, body.Purpose, body.ObjectID, body.Amount, body.Currency)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// VerifySessionHandler polls the provider for session status
// @Summary Verify a checkout session with the provider
// @Tags checkout
// @Produce json
// @Param sessionId path string true "Provider session ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /checkout/sessions/{sessionId}/verify [get]
func (cs *CheckoutService) VerifySessionHandler(w http.ResponseWriter, r *http.Request) {
	status, err := cs.VerifySession(chi.URLParam(r, "sessionId"))
	if err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// QRCodeHandler renders the checkout URL as a QR PNG
// @Summary Get a QR code for a checkout session
// @Tags checkout
// @Produce png
// @Param sessionId path string true "Provider session ID"
// @Success 200 {string} binary "PNG image"
// @Failure 404 {object} ErrorResponse
// @Router /checkout/sessions/{sessionId}/qr [get]
func (cs *CheckoutService) QRCodeHandler(w http.ResponseWriter, r *http.Request) {
	png, err := cs.GenerateQRCode(chi.URLParam(r, "sessionId"))
	if err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
