package delivery

import (
	"context"
	"time"

	"beacon/internal/platform/models"
)

// RetryPolicy drives the caller-side retry wrapper. Sleep is injectable so
// tests run without wall-clock delays.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: models.MaxDeliveryAttempts,
		BaseDelay:   time.Second,
		Sleep:       time.Sleep,
	}
}

// Backoff returns the delay before the given attempt (2-based: there is no
// delay before attempt 1). Exponential: base * 2^(attempt-2).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// DeliverWithRetry re-invokes DeliverOne with incrementing attempt numbers up
// to the policy maximum, stopping on the first delivered record. Each attempt
// produces its own DeliveryRecord. Returns every record produced, latest last.
func (e *Engine) DeliverWithRetry(ctx context.Context, webhook *models.Webhook, event *models.EventPayload, policy RetryPolicy) ([]*models.DeliveryRecord, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > models.MaxDeliveryAttempts {
		maxAttempts = models.MaxDeliveryAttempts
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var records []*models.DeliveryRecord
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			sleep(policy.Backoff(attempt))
		}
		if err := ctx.Err(); err != nil {
			return records, err
		}

		record, err := e.DeliverOne(ctx, webhook, event, Options{Attempt: attempt})
		if err != nil {
			return records, err
		}
		records = append(records, record)
		if record.Succeeded() {
			break
		}
	}
	return records, nil
}
