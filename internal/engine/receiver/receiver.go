// Package receiver handles third-party inbound webhooks: persist the raw
// call, run the provider's normalizer, record the terminal outcome. A record
// never stays stuck mid-processing; normalizer errors and panics both land
// it in the processed state with processing_error set.
package receiver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

// Result is what a normalizer produced from a raw payload.
type Result struct {
	Summary  string                 `json:"summary"`
	Entities []EntityChange         `json:"entities,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

type EntityChange struct {
	Collection string `json:"collection"`
	EntityID   string `json:"entity_id,omitempty"`
	Operation  string `json:"operation"` // created | updated
}

// Normalizer turns a provider's raw payload into business-entity operations.
type Normalizer interface {
	Normalize(ctx context.Context, payload []byte, headers map[string]string) (*Result, error)
}

type Service struct {
	records     *repositories.IncomingWebhookRepository
	normalizers *Registry
}

func NewService(records *repositories.IncomingWebhookRepository, normalizers *Registry) *Service {
	return &Service{records: records, normalizers: normalizers}
}

// Receive runs the full received -> processing -> processed state machine
// for one inbound call and returns the finished record.
func (s *Service) Receive(ctx context.Context, provider string, payload []byte, headers map[string]string) (*models.IncomingWebhook, error) {
	headersJSON, _ := json.Marshal(headers)
	record := &models.IncomingWebhook{
		Provider: provider,
		Headers:  string(headersJSON),
		Payload:  string(payload),
	}
	if err := s.records.Create(record); err != nil {
		return nil, fmt.Errorf("persist incoming webhook: %w", err)
	}

	result, procErr := s.process(ctx, provider, payload, headers)

	var resultJSON, errMsg string
	if procErr != nil {
		errMsg = procErr.Error()
		record.ProcessingError = errMsg
	} else {
		b, err := json.Marshal(result)
		if err != nil {
			errMsg = "encode result: " + err.Error()
			record.ProcessingError = errMsg
		} else {
			resultJSON = string(b)
			record.Result = resultJSON
		}
	}

	record.Processed = true
	if err := s.records.MarkProcessed(record.ID, resultJSON, errMsg); err != nil {
		log.Error().Err(err).Str("incoming_id", record.ID).Msg("failed to finalize incoming webhook record")
	}
	return record, nil
}

// process isolates the normalizer call so a panic inside a provider
// implementation becomes a processing error, not a dropped record.
func (s *Service) process(ctx context.Context, provider string, payload []byte, headers map[string]string) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("normalizer panic: %v", r)
		}
	}()

	normalizer := s.normalizers.Lookup(provider)
	return normalizer.Normalize(ctx, payload, headers)
}
