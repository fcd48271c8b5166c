package handlers

import (
	"net/http"
	"strconv"

	"beacon/internal/pkg/errors"
	"beacon/internal/platform/repositories"
)

type DeliveryHandler struct {
	registry   WebhookLookup
	deliveries *repositories.DeliveryRepository
}

func NewDeliveryHandler(registry WebhookLookup, deliveries *repositories.DeliveryRepository) *DeliveryHandler {
	return &DeliveryHandler{registry: registry, deliveries: deliveries}
}

// List returns the delivery log for one of the caller's webhooks, newest
// first.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	webhookID := r.URL.Query().Get("webhook_id")
	if webhookID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "webhook_id is required", nil)
		return
	}

	// Ownership check before exposing the log.
	if _, err := h.registry.Get(claims.IdentityID, webhookID); err != nil {
		writeServiceError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.deliveries.ListByWebhook(webhookID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": records})
}
