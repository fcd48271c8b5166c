package delivery

import "beacon/internal/platform/models"

// Transform applies a definition's rules to an event's data object: the
// rename map first, then the include-list filter. The input map is not
// mutated. Rename/filter-only rule sets are idempotent, so applying the
// result again yields the same map.
func Transform(rules *models.TransformRules, data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}

	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	if rules.IsZero() {
		return out
	}

	for from, to := range rules.Rename {
		if v, ok := out[from]; ok {
			delete(out, from)
			out[to] = v
		}
	}

	if len(rules.Include) > 0 {
		filtered := make(map[string]interface{}, len(rules.Include))
		for _, key := range rules.Include {
			if v, ok := out[key]; ok {
				filtered[key] = v
			}
		}
		out = filtered
	}

	return out
}
