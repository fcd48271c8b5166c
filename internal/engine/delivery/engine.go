package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

const responseExcerptLimit = 1024

// Reserved outbound headers. Definition custom headers may not override them.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

type Engine struct {
	webhooks   *repositories.WebhookRepository
	deliveries *repositories.DeliveryRepository
	client     *http.Client
}

// NewEngine builds a delivery engine. The timeout bounds every outbound send
// so a hung remote endpoint cannot pin a worker.
func NewEngine(webhooks *repositories.WebhookRepository, deliveries *repositories.DeliveryRepository, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		webhooks:   webhooks,
		deliveries: deliveries,
		client:     &http.Client{Timeout: timeout},
	}
}

type Options struct {
	IsTest  bool
	Attempt int // 1-based; zero means first attempt
}

// Tally summarizes a fan-out call.
type Tally struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// DeliverOne transforms, signs, sends and records a single delivery attempt.
// Send failures land in the returned record, never in the error: the error
// covers store and serialization problems only. The engine does not retry;
// retry orchestration belongs to DeliverWithRetry and the background worker.
func (e *Engine) DeliverOne(ctx context.Context, webhook *models.Webhook, event *models.EventPayload, opts Options) (*models.DeliveryRecord, error) {
	attempt := opts.Attempt
	if attempt < 1 {
		attempt = 1
	}

	outbound := models.EventPayload{
		Event:       event.Event,
		Timestamp:   event.Timestamp,
		Data:        Transform(webhook.Transform, event.Data),
		EntityID:    event.EntityID,
		EntityType:  event.EntityType,
		TriggeredBy: event.TriggeredBy,
	}
	body, err := json.Marshal(&outbound)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	record := &models.DeliveryRecord{
		WebhookID:   webhook.ID,
		Event:       event.Event,
		Payload:     string(body),
		Attempt:     attempt,
		MaxAttempts: models.MaxDeliveryAttempts,
		IsTest:      opts.IsTest,
	}
	if err := e.deliveries.Create(record); err != nil {
		return nil, fmt.Errorf("create delivery record: %w", err)
	}

	httpStatus, excerpt, sendErr := e.send(ctx, webhook, record, body)
	now := time.Now().Unix()

	if sendErr != nil {
		record.Status = models.DeliveryStatusFailed
		record.HTTPStatus = httpStatus
		record.Response = excerpt
		record.Error = sendErr.Error()
		record.FailedAt = now
		if err := e.deliveries.MarkFailed(record.ID, httpStatus, excerpt, sendErr.Error(), now); err != nil {
			log.Error().Err(err).Str("delivery_id", record.ID).Msg("failed to record delivery failure")
		}
	} else {
		record.Status = models.DeliveryStatusDelivered
		record.HTTPStatus = httpStatus
		record.Response = excerpt
		record.DeliveredAt = now
		if err := e.deliveries.MarkDelivered(record.ID, httpStatus, excerpt, now); err != nil {
			log.Error().Err(err).Str("delivery_id", record.ID).Msg("failed to record delivery success")
		}
	}

	if !opts.IsTest {
		if err := e.webhooks.RecordAttempt(webhook.ID, sendErr == nil, now); err != nil {
			log.Error().Err(err).Str("webhook_id", webhook.ID).Msg("failed to update webhook counters")
		}
	}

	return record, nil
}

// send performs the outbound POST. A non-2xx response or transport error is
// returned as the error; the record write happens-after in the caller.
func (e *Engine) send(ctx context.Context, webhook *models.Webhook, record *models.DeliveryRecord, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}

	// Custom headers first so reserved headers always win.
	for k, v := range webhook.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(webhook.Secret, body))
	req.Header.Set(HeaderDelivery, record.ID)
	req.Header.Set(HeaderEvent, record.Event)
	req.Header.Set(HeaderTimestamp, time.Now().UTC().Format(time.RFC3339))

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	excerpt := readExcerpt(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, excerpt, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, excerpt, nil
}

// DeliverToSubscribers fans an event out to every active definition
// subscribed to it. Deliveries run concurrently and independently; one
// failing target never blocks or fails the others.
func (e *Engine) DeliverToSubscribers(ctx context.Context, eventName string, event *models.EventPayload) ([]*models.DeliveryRecord, Tally, error) {
	webhooks, err := e.webhooks.GetByEvent(eventName)
	if err != nil {
		return nil, Tally{}, fmt.Errorf("lookup subscribers: %w", err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []*models.DeliveryRecord
		tally   Tally
	)

	for _, webhook := range webhooks {
		wg.Add(1)
		go func(w *models.Webhook) {
			defer wg.Done()
			record, err := e.DeliverOne(ctx, w.Clone(), event, Options{})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error().Err(err).Str("webhook_id", w.ID).Str("event", eventName).Msg("delivery aborted")
				tally.Failed++
				return
			}
			records = append(records, record)
			if record.Succeeded() {
				tally.Delivered++
			} else {
				tally.Failed++
			}
		}(webhook)
	}
	wg.Wait()

	return records, tally, nil
}

func readExcerpt(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, responseExcerptLimit))
	if err != nil {
		return ""
	}
	return string(b)
}
