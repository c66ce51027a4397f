package redact_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/redact"
)

func TestRedactMasksKnownKeys(t *testing.T) {
	in := map[string]any{
		"email":   "a@b.com",
		"Phone":   "+4915112345678",
		"task_id": "task-9",
	}

	out, tags := redact.Redact(in)

	assert.Equal(t, redact.Mask, out["email"])
	assert.Equal(t, redact.Mask, out["Phone"]) // key match is case-insensitive
	assert.Equal(t, "task-9", out["task_id"])
	assert.Equal(t, []string{"pii.email", "pii.phone"}, tags)
}

func TestRedactRecursesIntoNestedStructures(t *testing.T) {
	in := map[string]any{
		"customer": map[string]any{
			"full_name": "Ada Lovelace",
			"id":        "cust-1",
		},
		"attendees": []any{
			map[string]any{"email": "x@y.com"},
			map[string]any{"email": "z@y.com"},
			"not-a-map",
		},
	}

	out, tags := redact.Redact(in)

	customer := out["customer"].(map[string]any)
	assert.Equal(t, redact.Mask, customer["full_name"])
	assert.Equal(t, "cust-1", customer["id"])

	attendees := out["attendees"].([]any)
	assert.Equal(t, redact.Mask, attendees[0].(map[string]any)["email"])
	assert.Equal(t, redact.Mask, attendees[1].(map[string]any)["email"])
	assert.Equal(t, "not-a-map", attendees[2])

	// duplicate hits collapse into one sorted tag list
	assert.Equal(t, []string{"pii.email", "pii.name"}, tags)
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	nested := map[string]any{"email": "a@b.com"}
	in := map[string]any{"customer": nested, "password": "hunter2"}

	out, _ := redact.Redact(in)
	require.NotNil(t, out)

	assert.Equal(t, "a@b.com", nested["email"])
	assert.Equal(t, "hunter2", in["password"])
}

func TestRedactEmptyPayload(t *testing.T) {
	out, tags := redact.Redact(map[string]any{})
	assert.Empty(t, out)
	assert.Empty(t, tags)

	out, tags = redact.Redact(nil)
	assert.Empty(t, out)
	assert.Empty(t, tags)
}
