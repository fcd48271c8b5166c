package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "beacon/internal/api/context"
	"beacon/internal/engine/registry"
	"beacon/internal/pkg/errors"
	"beacon/internal/platform/auth"
	"beacon/internal/platform/repositories"
	"beacon/internal/platform/security"
)

type WebhookHandler struct {
	registry *registry.Service
	gate     *security.Gate
}

func NewWebhookHandler(registry *registry.Service, gate *security.Gate) *WebhookHandler {
	return &WebhookHandler{registry: registry, gate: gate}
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	var input registry.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	// Risk score is advisory: logged for the external gate, never enforced here.
	score := h.gate.RiskScore(claims.IdentityID, map[string]string{"url": input.URL, "name": input.Name})
	if score > 0 {
		log.Warn().Int("risk_score", score).Str("identity", claims.IdentityID).Str("url", input.URL).
			Msg("webhook create scored above zero")
	}

	webhook, err := h.registry.Create(claims.IdentityID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, webhook)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	filters := repositories.ListFilters{Event: r.URL.Query().Get("event")}
	if activeStr := r.URL.Query().Get("active"); activeStr != "" {
		active := activeStr == "true"
		filters.Active = &active
	}

	webhooks, err := h.registry.List(claims.IdentityID, filters)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"webhooks": webhooks})
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := pathParam(r, "webhook_id")

	webhook, err := h.registry.Get(claims.IdentityID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := pathParam(r, "webhook_id")

	var input registry.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	webhook, err := h.registry.Update(claims.IdentityID, id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := pathParam(r, "webhook_id")

	if err := h.registry.Delete(claims.IdentityID, id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func callerClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(apiContext.Claims).(*auth.Claims)
	if claims == nil {
		return &auth.Claims{}
	}
	return claims
}

func pathParam(r *http.Request, name string) string {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName(name)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *errors.ValidationError:
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, e.Error(), nil)
	case *errors.NotFoundError:
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, e.Error(), nil)
	default:
		log.Error().Err(err).Msg("request failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal error", nil)
	}
}
