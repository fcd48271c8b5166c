package handlers

import (
	"io"
	"net/http"
	"strings"

	"beacon/internal/engine/receiver"
	"beacon/internal/pkg/errors"
)

const maxInboundBody = 1 << 20 // 1 MiB

type ReceiverHandler struct {
	service *receiver.Service
}

func NewReceiverHandler(service *receiver.Service) *ReceiverHandler {
	return &ReceiverHandler{service: service}
}

// Handle accepts a third-party inbound payload. No caller identity exists on
// this path, so nothing in the payload is trusted for authorization. The
// external system is always acknowledged once the record reaches its
// terminal state, even when normalization failed.
func (h *ReceiverHandler) Handle(w http.ResponseWriter, r *http.Request) {
	provider := pathParam(r, "provider")
	if provider == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "provider is required", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "unreadable body", nil)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = strings.Join(v, ", ")
	}

	record, err := h.service.Receive(r.Context(), provider, body, headers)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        record.ID,
		"provider":  record.Provider,
		"processed": record.Processed,
	})
}
