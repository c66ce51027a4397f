package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/redact"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/relay"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository/repotest"
)

type fixture struct {
	outbox *repotest.Outbox
	log    *repotest.EventLog
	dlq    *repotest.DLQ
	relay  *relay.Relay
}

func newFixture(t *testing.T, cfg relay.Config) *fixture {
	t.Helper()

	f := &fixture{
		outbox: repotest.NewOutbox(),
		log:    repotest.NewEventLog(),
		dlq:    repotest.NewDLQ(),
	}
	f.relay = relay.New(repotest.TxRunner{}, f.outbox, f.log, f.dlq, redact.Redact, cfg, nil)
	return f
}

func pendingRow(id, tenantID, eventType string, payload string) model.OutboxEvent {
	now := time.Now().UTC()
	return model.OutboxEvent{
		ID:         id,
		TenantID:   tenantID,
		EventType:  eventType,
		Payload:    json.RawMessage(payload),
		Status:     model.OutboxStatusPending,
		OccurredAt: now,
		CreatedAt:  now,
	}
}

func TestProcessBatchPublishesRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.Config{})

	ev := pendingRow("row-1", "t1", "user.created.v1", `{"email":"a@b.com","trace_id":"tr-9"}`)
	require.NoError(t, f.outbox.Insert(ctx, nil, ev))

	stats, err := f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{Processed: 1}, stats)

	entries := f.log.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "user.created", entry.SchemaID)
	assert.Equal(t, "v1", entry.SchemaVersion)
	assert.Equal(t, "t1", entry.TenantID)
	assert.Equal(t, "tr-9", entry.TraceID)
	assert.Equal(t, relay.PayloadHash(ev.Payload), entry.PayloadHash)

	// payload in the log is redacted
	var logged map[string]any
	require.NoError(t, json.Unmarshal(entry.Payload, &logged))
	assert.Equal(t, redact.Mask, logged["email"])

	row, ok := f.outbox.Get("row-1")
	require.True(t, ok)
	assert.Equal(t, model.OutboxStatusPublished, row.Status)
	assert.NotNil(t, row.PublishedAt)
}

func TestProcessBatchIdempotentAfterCrash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.Config{})

	ev := pendingRow("row-1", "t1", "user.created.v1", `{"email":"a@b.com"}`)
	require.NoError(t, f.outbox.Insert(ctx, nil, ev))

	// Simulate a prior attempt that committed the log entry but crashed
	// before flipping the outbox row.
	_, err := f.log.Insert(ctx, nil, &model.EventLogEntry{
		EventID:     relay.DeriveEventID(ev),
		TenantID:    ev.TenantID,
		SchemaID:    "user.created",
		PublishedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	stats, err := f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{Skipped: 1}, stats)

	// still exactly one log row, outbox now published
	assert.Len(t, f.log.All(), 1)
	row, _ := f.outbox.Get("row-1")
	assert.Equal(t, model.OutboxStatusPublished, row.Status)
}

func TestProcessBatchWorkedExample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.Config{})

	ev := pendingRow("row-1", "t1", "user.created.v1", `{"email":"a@b.com"}`)
	require.NoError(t, f.outbox.Insert(ctx, nil, ev))

	stats, err := f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{Processed: 1}, stats)

	// Simulated crash before the outbox update: re-pend the same row and
	// relay again.
	require.NoError(t, f.outbox.Insert(ctx, nil, ev))

	stats, err = f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Processed)
	assert.Len(t, f.log.All(), 1)
}

func TestSequenceMonotonicGapless(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.Config{BatchSize: 50})

	base := time.Now().UTC()
	for i := 0; i < 20; i++ {
		ev := pendingRow(fmt.Sprintf("row-%02d", i), "t1", "task.created.v1",
			fmt.Sprintf(`{"n":%d}`, i))
		ev.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, f.outbox.Insert(ctx, nil, ev))
	}

	stats, err := f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Processed)

	entries := f.log.All()
	require.Len(t, entries, 20)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestMalformedEventTypeRetriesThenDLQ(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.Config{MaxAttempts: 3})

	ev := pendingRow("bad-1", "t1", "notype", `{"x":1}`)
	require.NoError(t, f.outbox.Insert(ctx, nil, ev))
	// a healthy row in the same batch must be unaffected
	ok := pendingRow("ok-1", "t1", "task.created.v1", `{"x":2}`)
	ok.CreatedAt = ev.CreatedAt.Add(time.Millisecond)
	require.NoError(t, f.outbox.Insert(ctx, nil, ok))

	stats, err := f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{Processed: 1, Failed: 1}, stats)

	row, _ := f.outbox.Get("bad-1")
	assert.Equal(t, model.OutboxStatusPending, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.Contains(t, row.LastError, "malformed event type")

	// two more failures exhaust the budget
	for i := 0; i < 2; i++ {
		_, err = f.relay.ProcessBatch(ctx)
		require.NoError(t, err)
	}

	row, _ = f.outbox.Get("bad-1")
	assert.Equal(t, model.OutboxStatusFailed, row.Status)

	msgs := f.dlq.All()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RelayConsumerName, msgs[0].ConsumerName)
	assert.Contains(t, msgs[0].Reason, "exhausted 3 attempts")
	assert.JSONEq(t, `{"x":1}`, string(msgs[0].Payload))

	// best-effort log entry carries the fallback schema id
	entry, err := f.log.GetByEventID(ctx, msgs[0].EventID)
	require.NoError(t, err)
	assert.Equal(t, "system.error", entry.SchemaID)

	// exhausted rows are no longer polled; nothing new happens
	stats, err = f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{}, stats)
	assert.Len(t, f.dlq.All(), 1)
}

func TestSuccessOnFinalAttemptAvoidsDLQ(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.Config{MaxAttempts: 3})

	ev := pendingRow("row-1", "t1", "task.created.v1", `{"x":1}`)
	require.NoError(t, f.outbox.Insert(ctx, nil, ev))

	// the first MaxAttempts-1 publishes hit a transient storage error
	f.log.FailInserts = 2
	f.log.InsertErr = errors.New("storage unavailable")

	for i := 0; i < 2; i++ {
		stats, err := f.relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, relay.Stats{Failed: 1}, stats)
	}

	// attempt MaxAttempts succeeds
	stats, err := f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{Processed: 1}, stats)

	row, _ := f.outbox.Get("row-1")
	assert.Equal(t, model.OutboxStatusPublished, row.Status)
	assert.Empty(t, f.dlq.All())
}

func TestDLQWriteFailureKeepsRowPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.Config{MaxAttempts: 1})

	ev := pendingRow("bad-1", "t1", "notype", `{"x":1}`)
	require.NoError(t, f.outbox.Insert(ctx, nil, ev))

	// both the insert and its immediate retry fail
	f.dlq.FailInserts = 2
	f.dlq.InsertErr = errors.New("dlq table unavailable")

	stats, err := f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{Failed: 1}, stats)

	// the audit trail is not lost: the row stays pending and escalation is
	// re-attempted on the next poll
	row, _ := f.outbox.Get("bad-1")
	assert.Equal(t, model.OutboxStatusPending, row.Status)
	assert.Contains(t, row.LastError, "dlq write failed")
	assert.Empty(t, f.dlq.All())

	stats, err = f.relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.Stats{Failed: 1}, stats)

	row, _ = f.outbox.Get("bad-1")
	assert.Equal(t, model.OutboxStatusFailed, row.Status)
	assert.Len(t, f.dlq.All(), 1)
}

func TestMetricsAggregates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.Config{})

	for i := 0; i < 3; i++ {
		ev := pendingRow(fmt.Sprintf("row-%d", i), "t1", "task.created.v1", `{"x":1}`)
		ev.OccurredAt = ev.OccurredAt.Add(-200 * time.Millisecond)
		require.NoError(t, f.outbox.Insert(ctx, nil, ev))
	}
	require.NoError(t, f.outbox.Insert(ctx, nil, pendingRow("row-p", "t1", "task.created.v1", `{"y":1}`)))

	// publish the first three only
	stats, err := relay.New(repotest.TxRunner{}, f.outbox, f.log, f.dlq, redact.Redact,
		relay.Config{BatchSize: 3}, nil).ProcessBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Processed)

	m, err := f.relay.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Pending)
	assert.Equal(t, int64(3), m.Published)
	assert.Equal(t, int64(0), m.Failed)
	assert.Equal(t, int64(0), m.DLQ)
	assert.Equal(t, 3, m.LagSampleSize)
	assert.Greater(t, m.AvgPublishLagMS, 0.0)
}
