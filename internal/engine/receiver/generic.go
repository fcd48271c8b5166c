package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// GenericNormalizer handles providers with no registered implementation. It
// records what arrived without mutating any business data.
type GenericNormalizer struct{}

func (g *GenericNormalizer) Normalize(_ context.Context, payload []byte, _ map[string]string) (*Result, error) {
	var parsed map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Result{
		Summary: fmt.Sprintf("recorded payload with %d top-level keys", len(keys)),
		Details: map[string]interface{}{"keys": keys},
	}, nil
}
