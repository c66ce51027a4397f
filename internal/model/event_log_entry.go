package model

import (
	"encoding/json"
	"time"
)

// EventLogEntry is one row of the append-only event log. Sequence is the
// auto-increment primary key consumers checkpoint against; EventID is the
// globally unique idempotency key (distinct from Sequence). Rows are never
// updated or deleted.
type EventLogEntry struct {
	Sequence      int64           `db:"sequence"`
	EventID       string          `db:"event_id"`
	TenantID      string          `db:"tenant_id"`
	SchemaID      string          `db:"schema_id"`      // e.g. foundation.user.created
	SchemaVersion string          `db:"schema_version"` // e.g. v1
	TraceID       string          `db:"trace_id"`
	CorrelationID string          `db:"correlation_id"`
	ActorUserID   string          `db:"actor_user_id"`
	Payload       json.RawMessage `db:"payload"` // redacted
	PayloadHash   string          `db:"payload_hash"`
	PublishedAt   time.Time       `db:"published_at"`
}
