// Package outbox builds outbox rows for domain transactions. Construction is
// pure: no I/O happens here, and durability is the caller's responsibility —
// the row must be inserted in the same transaction as the domain mutation it
// documents.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/util"
)

// Options carries the optional fields of an outbox event.
type Options struct {
	AggregateID   string
	DedupeKey     string // empty => the relay derives a deterministic one
	ActorUserID   string
	TraceID       string
	CorrelationID string
}

// BuildOutboxEvent constructs a pending outbox row for eventType
// ("<domain>.<name>.<version>") and the given payload. The payload envelope
// is augmented with a fresh event identifier, the event type, a version, the
// occurred-at timestamp and denormalized tenant/actor/trace fields, so
// consumers never need a join back to the origin table.
func BuildOutboxEvent(tenantID, eventType string, payload map[string]any, opts Options) (model.OutboxEvent, error) {
	if tenantID == "" {
		return model.OutboxEvent{}, fmt.Errorf("outbox: empty tenant id")
	}
	if eventType == "" {
		return model.OutboxEvent{}, fmt.Errorf("outbox: empty event type")
	}

	now := time.Now().UTC()

	env := make(map[string]any, len(payload)+8)
	for k, v := range payload {
		env[k] = v
	}
	env["event_id"] = util.New()
	env["event_type"] = eventType
	env["version"] = 1
	env["occurred_at"] = now.Format(time.RFC3339Nano)
	env["tenant_id"] = tenantID
	if opts.ActorUserID != "" {
		env["actor_user_id"] = opts.ActorUserID
	}
	if opts.TraceID != "" {
		env["trace_id"] = opts.TraceID
	}
	if opts.CorrelationID != "" {
		env["correlation_id"] = opts.CorrelationID
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return model.OutboxEvent{}, fmt.Errorf("outbox: marshal payload: %w", err)
	}

	return model.OutboxEvent{
		ID:          util.New(),
		TenantID:    tenantID,
		EventType:   eventType,
		AggregateID: opts.AggregateID,
		Payload:     raw,
		DedupeKey:   opts.DedupeKey,
		Status:      model.OutboxStatusPending,
		Attempts:    0,
		OccurredAt:  now,
		CreatedAt:   now,
	}, nil
}

// Writer inserts built events through the outbox repository.
type Writer struct {
	outbox repository.OutboxRepository
}

func NewWriter(repo repository.OutboxRepository) *Writer {
	return &Writer{outbox: repo}
}

// Enqueue builds an outbox event and inserts it using tx, which should be
// the caller's domain transaction. Returns the built row.
func (w *Writer) Enqueue(ctx context.Context, tx *sqlx.Tx, tenantID, eventType string, payload map[string]any, opts Options) (model.OutboxEvent, error) {
	ev, err := BuildOutboxEvent(tenantID, eventType, payload, opts)
	if err != nil {
		return model.OutboxEvent{}, err
	}

	if err := w.outbox.Insert(ctx, tx, ev); err != nil {
		return model.OutboxEvent{}, fmt.Errorf("outbox: insert: %w", err)
	}
	return ev, nil
}
