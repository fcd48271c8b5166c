package receiver

import (
	"context"
	"fmt"

	"beacon/internal/platform/entitystore"
)

// CRMNormalizer handles the first-party CRM sync format: a batch of
// operations, each naming a collection, an action, and a fields object.
//
//	{"operations":[{"collection":"contacts","action":"create","fields":{...}},
//	               {"collection":"deals","action":"update","filter":{...},"fields":{...}}]}
type CRMNormalizer struct {
	store *entitystore.Store
}

func NewCRMNormalizer(store *entitystore.Store) *CRMNormalizer {
	return &CRMNormalizer{store: store}
}

type crmPayload struct {
	Operations []crmOperation `json:"operations"`
}

type crmOperation struct {
	Collection string                 `json:"collection"`
	Action     string                 `json:"action"`
	Filter     map[string]interface{} `json:"filter,omitempty"`
	Fields     map[string]interface{} `json:"fields"`
}

func (n *CRMNormalizer) Normalize(ctx context.Context, payload []byte, _ map[string]string) (*Result, error) {
	var parsed crmPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, fmt.Errorf("invalid crm payload: %w", err)
	}
	if len(parsed.Operations) == 0 {
		return nil, fmt.Errorf("crm payload has no operations")
	}

	result := &Result{}
	for i, op := range parsed.Operations {
		switch op.Action {
		case "create":
			id, err := n.store.Create(ctx, op.Collection, op.Fields)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			result.Entities = append(result.Entities, EntityChange{
				Collection: op.Collection,
				EntityID:   id,
				Operation:  "created",
			})

		case "update":
			affected, err := n.store.UpdateByFilter(ctx, op.Collection, op.Filter, op.Fields)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			result.Entities = append(result.Entities, EntityChange{
				Collection: op.Collection,
				Operation:  fmt.Sprintf("updated:%d", affected),
			})

		default:
			return nil, fmt.Errorf("operation %d: unknown action %q", i, op.Action)
		}
	}

	result.Summary = fmt.Sprintf("applied %d operations", len(parsed.Operations))
	return result, nil
}
