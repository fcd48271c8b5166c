package models

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

const MaxDeliveryAttempts = 3

// DeliveryRecord is one attempted HTTP push of an event to a webhook's URL.
// The webhook id is a weak reference: records outlive webhook deletion.
// After the initial write only the pending -> delivered/failed transition
// mutates a record.
type DeliveryRecord struct {
	ID          string `json:"id"`
	WebhookID   string `json:"webhook_id"`
	Event       string `json:"event"`
	Payload     string `json:"payload"` // post-transform JSON body
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Status      string `json:"status"`
	HTTPStatus  int    `json:"http_status,omitempty"`
	Response    string `json:"response,omitempty"` // body excerpt
	Error       string `json:"error,omitempty"`
	IsTest      bool   `json:"is_test"`
	CreatedAt   int64  `json:"created_at"`
	DeliveredAt int64  `json:"delivered_at,omitempty"`
	FailedAt    int64  `json:"failed_at,omitempty"`
}

func (d *DeliveryRecord) Succeeded() bool {
	return d.Status == DeliveryStatusDelivered
}
