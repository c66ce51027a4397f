// Package analytics mirrors published events into ClickHouse for reporting
// queries that would be too heavy for the transactional store.
package analytics

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/consumer"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
)

const Name = "clickhouse-analytics"

type Sink struct {
	ch           *sqlx.DB // ClickHouse connection
	subscription string
}

func New(ch *sqlx.DB, subscription string) *Sink {
	return &Sink{ch: ch, subscription: subscription}
}

func (s *Sink) Name() string { return Name }

func (s *Sink) Subscription() string { return s.subscription }

// ProcessEvent appends the entry to the reporting table. The table is keyed
// by event_id with a ReplacingMergeTree, so at-least-once delivery collapses
// to one row. Insert errors are retryable.
func (s *Sink) ProcessEvent(ctx context.Context, e *model.EventLogEntry) consumer.Result {
	const q = `
		INSERT INTO buildflow.event_log
			(sequence, event_id, tenant_id, schema_id, schema_version, payload, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.ch.ExecContext(ctx, q,
		e.Sequence, e.EventID, e.TenantID, e.SchemaID, e.SchemaVersion, string(e.Payload), e.PublishedAt,
	)
	if err != nil {
		return consumer.Result{Success: false, Err: err, Retry: true}
	}
	return consumer.Result{Success: true}
}
