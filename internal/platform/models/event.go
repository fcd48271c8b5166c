package models

import "time"

// EventPayload is transient: it exists only for the duration of a delivery
// or broadcast call. The DeliveryRecord stores the materialized payload.
type EventPayload struct {
	Event       string                 `json:"event"` // dot-namespaced, e.g. "organization.created"
	Timestamp   int64                  `json:"timestamp"`
	Data        map[string]interface{} `json:"data"`
	EntityID    string                 `json:"entity_id,omitempty"`
	EntityType  string                 `json:"entity_type,omitempty"`
	TriggeredBy string                 `json:"triggered_by,omitempty"`
}

func NewEventPayload(event string, data map[string]interface{}) *EventPayload {
	return &EventPayload{
		Event:     event,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
}
