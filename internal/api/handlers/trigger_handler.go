package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"beacon/internal/engine/delivery"
	"beacon/internal/engine/stream"
	"beacon/internal/pkg/errors"
	"beacon/internal/platform/models"
)

// TriggerHandler covers the event-side surface: manual fan-out triggers,
// test deliveries, and live-connection broadcasts.
type TriggerHandler struct {
	engine      *delivery.Engine
	registry    WebhookLookup
	broadcaster *stream.Broadcaster
}

// WebhookLookup is the slice of the registry the trigger surface needs.
type WebhookLookup interface {
	Get(ownerID, id string) (*models.Webhook, error)
}

func NewTriggerHandler(engine *delivery.Engine, registry WebhookLookup, broadcaster *stream.Broadcaster) *TriggerHandler {
	return &TriggerHandler{engine: engine, registry: registry, broadcaster: broadcaster}
}

type triggerRequest struct {
	Event      string                 `json:"event"`
	Data       map[string]interface{} `json:"data"`
	EntityID   string                 `json:"entityId,omitempty"`
	EntityType string                 `json:"entityType,omitempty"`
}

// Trigger fans an event out to every subscribed webhook. Per-target failures
// are reported in the tally, never as a failure of this request.
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Event == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "event is required", nil)
		return
	}

	event := &models.EventPayload{
		Event:       req.Event,
		Timestamp:   time.Now().Unix(),
		Data:        req.Data,
		EntityID:    req.EntityID,
		EntityType:  req.EntityType,
		TriggeredBy: claims.IdentityID,
	}

	records, tally, err := h.engine.DeliverToSubscribers(r.Context(), req.Event, event)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"tally":      tally,
		"deliveries": records,
	})
}

// Test performs a single delivery against one definition with the is-test
// flag set; rolling counters stay untouched.
func (h *TriggerHandler) Test(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := pathParam(r, "webhook_id")

	webhook, err := h.registry.Get(claims.IdentityID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	eventName := req.Event
	if eventName == "" {
		eventName = "webhook.test"
	}
	data := req.Data
	if data == nil {
		data = map[string]interface{}{"test": true}
	}

	event := &models.EventPayload{
		Event:       eventName,
		Timestamp:   time.Now().Unix(),
		Data:        data,
		TriggeredBy: claims.IdentityID,
	}

	record, err := h.engine.DeliverOne(r.Context(), webhook, event, delivery.Options{IsTest: true})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

type broadcastRequest struct {
	Type     string      `json:"type"`
	Data     interface{} `json:"data"`
	Channels []string    `json:"channels,omitempty"`
}

// Broadcast pushes a message to matching live connections and reports the
// per-target outcome, 200 even when some sends failed.
func (h *TriggerHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Type == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "type is required", nil)
		return
	}

	result := h.broadcaster.Broadcast(req.Type, req.Data, req.Channels)
	writeJSON(w, http.StatusOK, result)
}
