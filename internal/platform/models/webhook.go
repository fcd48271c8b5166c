package models

// TransformRules describes the declarative payload rewrite applied before
// signing and sending: renames first, then the include filter.
type TransformRules struct {
	Rename  map[string]string `json:"rename,omitempty"`
	Include []string          `json:"include,omitempty"`
}

func (r *TransformRules) IsZero() bool {
	return r == nil || (len(r.Rename) == 0 && len(r.Include) == 0)
}

type Webhook struct {
	ID            string            `json:"id"`
	OwnerID       string            `json:"owner_id"`
	Name          string            `json:"name"`
	URL           string            `json:"url"`
	Events        []string          `json:"events"` // JSON array in DB
	Secret        string            `json:"secret"`
	Active        bool              `json:"active"`
	Headers       map[string]string `json:"headers,omitempty"`
	Transform     *TransformRules   `json:"transform,omitempty"`
	AttemptCount  int64             `json:"attempt_count"`
	SuccessCount  int64             `json:"success_count"`
	FailureCount  int64             `json:"failure_count"`
	LastAttemptAt int64             `json:"last_attempt_at,omitempty"`
	LastSuccessAt int64             `json:"last_success_at,omitempty"`
	LastFailureAt int64             `json:"last_failure_at,omitempty"`
	CreatedAt     int64             `json:"created_at"`
	UpdatedAt     int64             `json:"updated_at"`
	DeletedAt     *int64            `json:"deleted_at,omitempty"`
}

func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Clone returns a detached copy so in-flight deliveries keep working after
// the definition is updated or soft-deleted.
func (w *Webhook) Clone() *Webhook {
	cp := *w
	cp.Events = append([]string(nil), w.Events...)
	if w.Headers != nil {
		cp.Headers = make(map[string]string, len(w.Headers))
		for k, v := range w.Headers {
			cp.Headers[k] = v
		}
	}
	if w.Transform != nil {
		t := TransformRules{Include: append([]string(nil), w.Transform.Include...)}
		if w.Transform.Rename != nil {
			t.Rename = make(map[string]string, len(w.Transform.Rename))
			for k, v := range w.Transform.Rename {
				t.Rename[k] = v
			}
		}
		cp.Transform = &t
	}
	return &cp
}

// WebhookStats is the derived summary attached to list responses.
type WebhookStats struct {
	SuccessRate float64 `json:"success_rate"` // over the last 100 deliveries
	Recent24h   int     `json:"recent_24h"`   // deliveries in the last 24 hours
	SampleSize  int     `json:"sample_size"`  // deliveries the rate was computed over
}

type WebhookWithStats struct {
	*Webhook
	Stats WebhookStats `json:"stats"`
}
