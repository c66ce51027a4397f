// Package redact masks personally identifiable fields in event payloads
// before they reach the durable log. Masking is best-effort and key-based:
// unexpected shapes pass through untouched, never panic.
package redact

import (
	"sort"
	"strings"
)

const Mask = "[REDACTED]"

// piiKeys maps lowercased payload keys to the tag recorded for them.
var piiKeys = map[string]string{
	"email":         "pii.email",
	"phone":         "pii.phone",
	"phone_number":  "pii.phone",
	"mobile":        "pii.phone",
	"name":          "pii.name",
	"first_name":    "pii.name",
	"last_name":     "pii.name",
	"full_name":     "pii.name",
	"address":       "pii.address",
	"street":        "pii.address",
	"postal_code":   "pii.address",
	"ssn":           "pii.national_id",
	"national_id":   "pii.national_id",
	"date_of_birth": "pii.dob",
	"dob":           "pii.dob",
	"password":      "secret.password",
	"token":         "secret.token",
	"api_key":       "secret.token",
}

// Redact returns a deep copy of payload with known PII fields masked, plus
// the sorted, de-duplicated tags of everything it masked. The input is never
// mutated.
func Redact(payload map[string]any) (map[string]any, []string) {
	tags := map[string]struct{}{}
	out := redactMap(payload, tags)

	list := make([]string, 0, len(tags))
	for t := range tags {
		list = append(list, t)
	}
	sort.Strings(list)
	return out, list
}

func redactMap(m map[string]any, tags map[string]struct{}) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if tag, ok := piiKeys[strings.ToLower(k)]; ok {
			tags[tag] = struct{}{}
			out[k] = Mask
			continue
		}
		out[k] = redactValue(v, tags)
	}
	return out
}

func redactValue(v any, tags map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		return redactMap(t, tags)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, tags)
		}
		return out
	default:
		return v
	}
}
