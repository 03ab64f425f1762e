package api

import (
	"fmt"
	"sort"
)

type orderValidation struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// validateOrderStructure checks an order payload against the expected
// schema. Errors accumulate; the caller sees every problem at once.
func validateOrderStructure(data map[string]any) orderValidation {
	var errs []string

	for _, field := range []string{"id", "factory"} {
		if _, ok := data[field]; !ok {
			errs = append(errs, fmt.Sprintf("missing required field: %s", field))
		}
	}

	if raw, ok := data["placeholder_payload"]; ok {
		payload, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, "placeholder_payload must be an object")
		} else {
			keys := make([]string, 0, len(payload))
			for k := range payload {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, id := range keys {
				info, ok := payload[id].(map[string]any)
				if !ok {
					errs = append(errs, fmt.Sprintf("placeholder_payload[%s] must be an object", id))
					continue
				}
				if _, ok := info["mini_prompt"]; !ok {
					errs = append(errs, fmt.Sprintf("placeholder_payload[%s] missing 'mini_prompt'", id))
				}
			}
		}
	}

	return orderValidation{OK: len(errs) == 0, Errors: errs}
}
