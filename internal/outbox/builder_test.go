package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/outbox"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository/repotest"
)

func TestBuildOutboxEventAugmentsEnvelope(t *testing.T) {
	ev, err := outbox.BuildOutboxEvent("t1", "taskflow.task.created.v1",
		map[string]any{"task_id": "task-9", "title": "ship it"},
		outbox.Options{
			AggregateID: "task-9",
			ActorUserID: "user-3",
			TraceID:     "tr-7",
		})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "t1", ev.TenantID)
	assert.Equal(t, "taskflow.task.created.v1", ev.EventType)
	assert.Equal(t, "task-9", ev.AggregateID)
	assert.Equal(t, model.OutboxStatusPending, ev.Status)
	assert.Zero(t, ev.Attempts)
	assert.False(t, ev.OccurredAt.IsZero())

	var env map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &env))

	// caller fields survive
	assert.Equal(t, "task-9", env["task_id"])
	assert.Equal(t, "ship it", env["title"])

	// envelope fields are added
	assert.NotEmpty(t, env["event_id"])
	assert.Equal(t, "taskflow.task.created.v1", env["event_type"])
	assert.Equal(t, float64(1), env["version"])
	assert.Equal(t, "t1", env["tenant_id"])
	assert.Equal(t, "user-3", env["actor_user_id"])
	assert.Equal(t, "tr-7", env["trace_id"])
	_, hasCorr := env["correlation_id"]
	assert.False(t, hasCorr)

	occurred, err := time.Parse(time.RFC3339Nano, env["occurred_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, ev.OccurredAt, occurred, time.Millisecond)
}

func TestBuildOutboxEventUniqueIDs(t *testing.T) {
	a, err := outbox.BuildOutboxEvent("t1", "taskflow.task.created.v1", nil, outbox.Options{})
	require.NoError(t, err)
	b, err := outbox.BuildOutboxEvent("t1", "taskflow.task.created.v1", nil, outbox.Options{})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestBuildOutboxEventDedupeKeyPassthrough(t *testing.T) {
	ev, err := outbox.BuildOutboxEvent("t1", "taskflow.task.created.v1", nil,
		outbox.Options{DedupeKey: "task-9-created"})
	require.NoError(t, err)
	assert.Equal(t, "task-9-created", ev.DedupeKey)
}

func TestBuildOutboxEventValidation(t *testing.T) {
	_, err := outbox.BuildOutboxEvent("", "taskflow.task.created.v1", nil, outbox.Options{})
	assert.Error(t, err)

	_, err = outbox.BuildOutboxEvent("t1", "", nil, outbox.Options{})
	assert.Error(t, err)
}

func TestWriterEnqueue(t *testing.T) {
	ctx := context.Background()
	repo := repotest.NewOutbox()
	w := outbox.NewWriter(repo)

	ev, err := w.Enqueue(ctx, nil, "t1", "taskflow.task.created.v1",
		map[string]any{"task_id": "task-9"}, outbox.Options{})
	require.NoError(t, err)

	stored, ok := repo.Get(ev.ID)
	require.True(t, ok)
	assert.Equal(t, model.OutboxStatusPending, stored.Status)
	assert.JSONEq(t, string(ev.Payload), string(stored.Payload))
}
