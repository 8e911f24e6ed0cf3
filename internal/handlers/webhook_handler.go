package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/spf13/viper"
	"github.com/talenthub/backend/internal/models"
	"github.com/talenthub/backend/internal/services"
)

// WebhookHandler receives payment provider callbacks. The provider retries on
// timeout, so both endpoints answer 200 for replayed events.
type WebhookHandler struct {
	reconciler *services.ReconciliationService
	validator  *services.ValidationHelper
}

func NewWebhookHandler(reconciler *services.ReconciliationService) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		validator:  services.NewValidationHelper(),
	}
}

// PaymentConfirmed handles the provider's payment-confirmed callback
// @Summary Payment confirmed webhook
// @Description Process a payment confirmation from the payment provider
// @Tags webhooks
// @Accept json
// @Produce json
// @Param event body models.PaymentEvent true "Payment event"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /webhooks/payment-confirmed [post]
func (h *WebhookHandler) PaymentConfirmed(w http.ResponseWriter, r *http.Request) {
	event, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}

	err := h.reconciler.ProcessPaymentConfirmed(event)
	if errors.Is(err, services.ErrAlreadyProcessed) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "already processed"})
		return
	}
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "processed"})
}

// PaymentFailed handles the provider's payment-failed callback
// @Summary Payment failed webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Param event body models.PaymentEvent true "Payment event"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Router /webhooks/payment-failed [post]
func (h *WebhookHandler) PaymentFailed(w http.ResponseWriter, r *http.Request) {
	event, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}

	err := h.reconciler.ProcessPaymentFailed(event)
	if errors.Is(err, services.ErrAlreadyProcessed) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "already processed"})
		return
	}
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "processed"})
}

func (h *WebhookHandler) decodeEvent(w http.ResponseWriter, r *http.Request) (*models.PaymentEvent, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}

	if !verifySignature(body, r.Header.Get("X-Provider-Signature")) {
		services.SendErrorResponse(w, "Invalid webhook signature", http.StatusUnauthorized, nil)
		return nil, false
	}

	var event models.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}

	if err := h.validator.ValidateStruct(&event); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return nil, false
	}

	return &event, true
}

// verifySignature checks the provider's HMAC over the raw body. An empty
// configured secret disables the check for local development.
func verifySignature(body []byte, signature string) bool {
	secret := viper.GetString("provider.webhook_secret")
	if secret == "" {
		return true
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
