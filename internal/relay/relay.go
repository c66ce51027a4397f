// Package relay moves pending outbox rows into the append-only event log.
// Delivery is at-least-once; idempotency comes from the deterministic event
// id plus the log's unique-by-event-id constraint, so the relay is safe to
// re-run after partial failures and safe under concurrent instances.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/metrics"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/sqlutil"
)

const (
	DefaultBatchSize   = 15
	DefaultMaxAttempts = 10

	// fallbackSchemaID is used for the best-effort log entry written during
	// DLQ escalation when the event type never parsed.
	fallbackSchemaID = "system.error"
)

// Redactor is the external redaction collaborator: pure, best-effort, and
// required to tolerate unexpected payload shapes.
type Redactor func(payload map[string]any) (redacted map[string]any, piiTags []string)

type Config struct {
	BatchSize     int
	MaxAttempts   int
	LagSampleSize int
}

// Stats reports the outcome of one relay batch.
type Stats struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type Relay struct {
	txr    sqlutil.TxRunner
	outbox repository.OutboxRepository
	log    repository.EventLogRepository
	dlq    repository.DLQRepository
	redact Redactor
	cfg    Config
	logg   *zap.Logger
}

func New(
	txr sqlutil.TxRunner,
	outboxRepo repository.OutboxRepository,
	logRepo repository.EventLogRepository,
	dlqRepo repository.DLQRepository,
	redact Redactor,
	cfg Config,
	logg *zap.Logger,
) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LagSampleSize <= 0 {
		cfg.LagSampleSize = 100
	}
	if logg == nil {
		logg = zap.NewNop()
	}

	return &Relay{
		txr:    txr,
		outbox: outboxRepo,
		log:    logRepo,
		dlq:    dlqRepo,
		redact: redact,
		cfg:    cfg,
		logg:   logg,
	}
}

// ProcessBatch relays one bounded batch of pending outbox rows, oldest
// first. Row-level failures are contained: one bad row never aborts the
// batch. The returned error covers only the initial fetch.
func (r *Relay) ProcessBatch(ctx context.Context) (Stats, error) {
	var stats Stats

	rows, err := r.outbox.FetchPending(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		return stats, fmt.Errorf("relay: fetch pending: %w", err)
	}

	for i := range rows {
		ev := rows[i]

		skipped, err := r.relayOne(ctx, ev)
		switch {
		case err != nil:
			stats.Failed++
			metrics.RelayEventsTotal.WithLabelValues("failed").Inc()
			r.handleFailure(ctx, ev, err)
		case skipped:
			stats.Skipped++
			metrics.RelayEventsTotal.WithLabelValues("skipped").Inc()
		default:
			stats.Processed++
			metrics.RelayEventsTotal.WithLabelValues("processed").Inc()
		}
	}

	return stats, nil
}

// relayOne publishes a single outbox row. Returns skipped=true when the
// event was already durably published in a prior attempt.
func (r *Relay) relayOne(ctx context.Context, ev model.OutboxEvent) (skipped bool, err error) {
	eventID := DeriveEventID(ev)
	now := time.Now().UTC()

	// Idempotency check: an existing log entry means a prior attempt got the
	// publish through but crashed before flipping the outbox row.
	_, err = r.log.GetByEventID(ctx, eventID)
	switch {
	case err == nil:
		if err := r.txr.WithinTx(ctx, func(tx *sqlx.Tx) error {
			return r.outbox.MarkPublished(ctx, tx, ev.ID, now)
		}); err != nil {
			return false, fmt.Errorf("mark published after skip: %w", err)
		}
		return true, nil
	case !errors.Is(err, repository.ErrNotFound):
		return false, fmt.Errorf("event log lookup: %w", err)
	}

	schemaID, version, err := ParseEventType(ev.EventType)
	if err != nil {
		return false, err
	}

	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return false, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	redacted, piiTags := r.redact(payload)
	redactedRaw, err := json.Marshal(redacted)
	if err != nil {
		return false, fmt.Errorf("marshal redacted payload: %w", err)
	}

	entry := &model.EventLogEntry{
		EventID:       eventID,
		TenantID:      ev.TenantID,
		SchemaID:      schemaID,
		SchemaVersion: version,
		TraceID:       stringField(payload, "trace_id"),
		CorrelationID: stringField(payload, "correlation_id"),
		ActorUserID:   stringField(payload, "actor_user_id"),
		Payload:       redactedRaw,
		PayloadHash:   PayloadHash(ev.Payload),
		PublishedAt:   now,
	}

	// Atomic publish: log insert and outbox flip commit together.
	err = r.txr.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := r.log.Insert(ctx, tx, entry); err != nil {
			return err
		}
		return r.outbox.MarkPublished(ctx, tx, ev.ID, now)
	})
	if errors.Is(err, repository.ErrDuplicateEventID) {
		// A concurrent relay instance won the insert between our lookup and
		// our commit. Treat like the idempotency check above.
		if err := r.txr.WithinTx(ctx, func(tx *sqlx.Tx) error {
			return r.outbox.MarkPublished(ctx, tx, ev.ID, now)
		}); err != nil {
			return false, fmt.Errorf("mark published after duplicate: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("publish: %w", err)
	}

	metrics.PublishLagSeconds.Observe(now.Sub(ev.OccurredAt).Seconds())

	if len(piiTags) > 0 {
		r.logg.Debug("redacted payload fields",
			zap.String("event_id", eventID),
			zap.Strings("pii_tags", piiTags))
	}

	return false, nil
}

// handleFailure increments attempts and either retries (row stays pending;
// the poll interval is the backoff) or escalates to the DLQ at the ceiling.
// Escalation failures are contained here: the poll loop must never die
// because of a poison row.
func (r *Relay) handleFailure(ctx context.Context, ev model.OutboxEvent, cause error) {
	attempts := ev.Attempts + 1

	if attempts < r.cfg.MaxAttempts {
		if err := r.outbox.RecordAttempt(ctx, ev.ID, attempts, cause.Error()); err != nil {
			r.logg.Error("record attempt failed",
				zap.String("outbox_id", ev.ID), zap.Error(err))
		}
		r.logg.Warn("relay row failed, will retry",
			zap.String("outbox_id", ev.ID),
			zap.Int("attempts", attempts),
			zap.Error(cause))
		return
	}

	r.escalate(ctx, ev, attempts, cause)
}

func (r *Relay) escalate(ctx context.Context, ev model.OutboxEvent, attempts int, cause error) {
	eventID := DeriveEventID(ev)
	now := time.Now().UTC()

	// Placeholder log entry so the DLQ row references a valid event id. The
	// event never earned a real stream position, so the DLQ row carries
	// sequence 0.
	schemaID, version, perr := ParseEventType(ev.EventType)
	if perr != nil {
		schemaID, version = fallbackSchemaID, "v1"
	}
	entry := &model.EventLogEntry{
		EventID:       eventID,
		TenantID:      ev.TenantID,
		SchemaID:      schemaID,
		SchemaVersion: version,
		Payload:       json.RawMessage(`{}`),
		PayloadHash:   PayloadHash(ev.Payload),
		PublishedAt:   now,
	}

	msg := model.DLQMessage{
		ConsumerName: model.RelayConsumerName,
		EventID:      eventID,
		Reason:       fmt.Sprintf("relay exhausted %d attempts: %v", attempts, cause),
		Payload:      ev.Payload,
		CreatedAt:    now,
	}

	// One transaction for the whole escalation: if the DLQ write fails,
	// nothing else lands either, in particular no orphan log entry that the
	// next poll's idempotency check would mistake for a successful publish.
	writeDLQ := func() error {
		return r.txr.WithinTx(ctx, func(tx *sqlx.Tx) error {
			if err := r.dlq.Insert(ctx, tx, msg); err != nil {
				return err
			}
			if _, err := r.log.Insert(ctx, tx, entry); err != nil && !errors.Is(err, repository.ErrDuplicateEventID) {
				return err
			}
			return r.outbox.MarkFailed(ctx, tx, ev.ID, msg.Reason)
		})
	}

	err := writeDLQ()
	if err != nil {
		err = writeDLQ() // one immediate retry before giving up this tick
	}
	if err != nil {
		// Keep the row pending with its attempts persisted so escalation is
		// re-attempted next poll instead of silently losing the audit trail.
		metrics.DLQWriteFailuresTotal.Inc()
		r.logg.Error("DLQ write failed, keeping row pending",
			zap.String("outbox_id", ev.ID),
			zap.String("event_id", eventID),
			zap.Error(err))
		if rerr := r.outbox.RecordAttempt(ctx, ev.ID, attempts-1, "dlq write failed: "+err.Error()); rerr != nil {
			r.logg.Error("record attempt after DLQ failure failed",
				zap.String("outbox_id", ev.ID), zap.Error(rerr))
		}
		return
	}

	metrics.RelayEventsTotal.WithLabelValues("dlq").Inc()
	r.logg.Error("relay row moved to DLQ",
		zap.String("outbox_id", ev.ID),
		zap.String("event_id", eventID),
		zap.Int("attempts", attempts),
		zap.Error(cause))
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
