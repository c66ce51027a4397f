// Package forwarder fans published events out to Kafka, one topic per
// schema id. Downstream delivery only: the event log in the database stays
// the source of truth.
package forwarder

import (
	"context"
	"encoding/json"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/consumer"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/kafka"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
)

const Name = "kafka-forwarder"

// envelope is the wire shape written to Kafka.
type envelope struct {
	EventID       string          `json:"event_id"`
	Sequence      int64           `json:"sequence"`
	TenantID      string          `json:"tenant_id"`
	SchemaID      string          `json:"schema_id"`
	SchemaVersion string          `json:"schema_version"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   string          `json:"published_at"`
}

type Forwarder struct {
	producer     *kafka.Producer
	topicPrefix  string
	subscription string
}

func New(producer *kafka.Producer, topicPrefix, subscription string) *Forwarder {
	return &Forwarder{producer: producer, topicPrefix: topicPrefix, subscription: subscription}
}

func (f *Forwarder) Name() string { return Name }

func (f *Forwarder) Subscription() string { return f.subscription }

// ProcessEvent publishes the entry to "<prefix><schema id>", keyed by event
// id so replays land in the same partition. Kafka errors are retryable.
func (f *Forwarder) ProcessEvent(ctx context.Context, e *model.EventLogEntry) consumer.Result {
	value, err := json.Marshal(envelope{
		EventID:       e.EventID,
		Sequence:      e.Sequence,
		TenantID:      e.TenantID,
		SchemaID:      e.SchemaID,
		SchemaVersion: e.SchemaVersion,
		TraceID:       e.TraceID,
		CorrelationID: e.CorrelationID,
		Payload:       e.Payload,
		PublishedAt:   e.PublishedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		// Marshal failures don't heal on retry.
		return consumer.Result{Success: false, Err: err, Retry: false}
	}

	if err := f.producer.Publish(ctx, f.topicPrefix+e.SchemaID, e.EventID, value); err != nil {
		return consumer.Result{Success: false, Err: err, Retry: true}
	}
	return consumer.Result{Success: true}
}
