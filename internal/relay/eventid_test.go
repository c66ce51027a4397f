package relay

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
)

func TestDeriveEventIDDeterministic(t *testing.T) {
	ev := model.OutboxEvent{
		TenantID:    "t1",
		EventType:   "user.created.v1",
		AggregateID: "agg-1",
		Payload:     []byte(`{"email":"a@b.com"}`),
	}

	first := DeriveEventID(ev)
	second := DeriveEventID(ev)
	assert.Equal(t, first, second)

	// proper RFC4122 shape
	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestDeriveEventIDSensitiveToEveryField(t *testing.T) {
	base := model.OutboxEvent{
		TenantID:    "t1",
		EventType:   "user.created.v1",
		AggregateID: "agg-1",
		Payload:     []byte(`{"email":"a@b.com"}`),
	}
	baseID := DeriveEventID(base)

	tenant := base
	tenant.TenantID = "t2"
	assert.NotEqual(t, baseID, DeriveEventID(tenant))

	typ := base
	typ.EventType = "user.updated.v1"
	assert.NotEqual(t, baseID, DeriveEventID(typ))

	agg := base
	agg.AggregateID = "agg-2"
	assert.NotEqual(t, baseID, DeriveEventID(agg))

	payload := base
	payload.Payload = []byte(`{"email":"c@d.com"}`)
	assert.NotEqual(t, baseID, DeriveEventID(payload))
}

func TestDeriveEventIDUsesDedupeKeyVerbatim(t *testing.T) {
	ev := model.OutboxEvent{
		TenantID:  "t1",
		EventType: "user.created.v1",
		Payload:   []byte(`{}`),
		DedupeKey: "task-123-created",
	}
	assert.Equal(t, "task-123-created", DeriveEventID(ev))
}

func TestParseEventType(t *testing.T) {
	tests := []struct {
		in       string
		schemaID string
		version  string
		wantErr  bool
	}{
		{"user.created.v1", "user.created", "v1", false},
		{"foundation.ai.action.reviewed.v2", "foundation.ai.action.reviewed", "v2", false},
		{"ping.v1", "ping", "v1", false},
		{"noversion", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		schemaID, version, err := ParseEventType(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMalformedEventType, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.schemaID, schemaID)
		assert.Equal(t, tt.version, version)
	}
}
