package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"beacon/internal/engine/delivery"
	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

// RetryWorker re-delivers failed records from the delivery log. The engine
// itself never loops; this worker is the asynchronous half of the retry
// contract, driven by persisted payloads so a restart loses nothing.
type RetryWorker struct {
	engine     *delivery.Engine
	webhooks   *repositories.WebhookRepository
	deliveries *repositories.DeliveryRepository
	backoff    delivery.RetryPolicy
	batchSize  int
}

func NewRetryWorker(engine *delivery.Engine, webhooks *repositories.WebhookRepository, deliveries *repositories.DeliveryRepository, backoff delivery.RetryPolicy) *RetryWorker {
	return &RetryWorker{
		engine:     engine,
		webhooks:   webhooks,
		deliveries: deliveries,
		backoff:    backoff,
		batchSize:  100,
	}
}

// Run loops until the context is cancelled, sweeping retry candidates every
// interval.
func (w *RetryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("retry sweep failed")
			} else if n > 0 {
				log.Info().Int("retried", n).Msg("retry sweep completed")
			}
		}
	}
}

// Sweep retries every eligible failed record once and returns how many it
// attempted. A record is eligible when its backoff window since the failure
// has elapsed and attempts remain.
func (w *RetryWorker) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-w.backoff.BaseDelay).Unix()
	candidates, err := w.deliveries.RetryCandidates(cutoff, w.batchSize)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, record := range candidates {
		if ctx.Err() != nil {
			return retried, ctx.Err()
		}
		if !w.due(record) {
			continue
		}
		if err := w.retryOne(ctx, record); err != nil {
			log.Warn().Err(err).Str("delivery_id", record.ID).Msg("retry attempt failed")
			continue
		}
		retried++
	}
	return retried, nil
}

// due applies exponential backoff per attempt already made: a record that
// failed attempt n waits backoff(n+1) before attempt n+1.
func (w *RetryWorker) due(record *models.DeliveryRecord) bool {
	wait := w.backoff.Backoff(record.Attempt + 1)
	return time.Now().Unix() >= record.FailedAt+int64(wait.Seconds())
}

func (w *RetryWorker) retryOne(ctx context.Context, record *models.DeliveryRecord) error {
	// The definition may have been deactivated or soft-deleted since the
	// original attempt; in either case the retry is abandoned.
	webhook, err := w.lookupWebhook(record.WebhookID)
	if err != nil {
		return err
	}
	if webhook == nil || !webhook.Active {
		return nil
	}

	var event models.EventPayload
	if err := json.Unmarshal([]byte(record.Payload), &event); err != nil {
		return err
	}

	_, err = w.engine.DeliverOne(ctx, webhook, &event, delivery.Options{Attempt: record.Attempt + 1})
	return err
}

func (w *RetryWorker) lookupWebhook(id string) (*models.Webhook, error) {
	webhook, err := w.webhooks.GetAnyByID(id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return webhook, err
}
