package models

// IncomingWebhook is one third-party inbound call. Created on receipt,
// updated exactly once when processing completes.
type IncomingWebhook struct {
	ID              string `json:"id"`
	Provider        string `json:"provider"`
	Headers         string `json:"headers"` // raw headers, JSON object
	Payload         string `json:"payload"` // raw body
	Processed       bool   `json:"processed"`
	Result          string `json:"result,omitempty"` // JSON, set on success
	ProcessingError string `json:"processing_error,omitempty"`
	ReceivedAt      int64  `json:"received_at"`
	ProcessedAt     int64  `json:"processed_at,omitempty"`
}
