package model

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

func (s OutboxStatus) String() string {
	return string(s)
}

func (s OutboxStatus) Valid() bool {
	return s == OutboxStatusPending || s == OutboxStatusPublished || s == OutboxStatusFailed
}

// OutboxEvent is the DB entity persisted in the outbox table: a pending fact
// written in the same transaction as the domain change it documents.
// Only the relay mutates it after insert; rows are never deleted.
type OutboxEvent struct {
	ID          string          `db:"id"` // ULID, assigned at build time
	TenantID    string          `db:"tenant_id"`
	EventType   string          `db:"event_type"` // <domain>.<name>.<version>
	AggregateID string          `db:"aggregate_id"`
	Payload     json.RawMessage `db:"payload"`
	DedupeKey   string          `db:"dedupe_key"` // empty => relay derives one
	Status      OutboxStatus    `db:"status"`
	Attempts    int             `db:"attempts"`
	LastError   string          `db:"last_error"`
	OccurredAt  time.Time       `db:"occurred_at"`
	PublishedAt *time.Time      `db:"published_at"`
	CreatedAt   time.Time       `db:"created_at"`
}
