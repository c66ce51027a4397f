package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/sqlutil"
)

// OutboxRepository defines persistence methods for the outbox table.
// Rows are created inside the originating domain transaction and mutated
// only by the relay afterwards; they are never deleted.
type OutboxRepository interface {
	// Insert writes a single outbox row. If tx is nil it runs on the pool;
	// callers normally pass the domain transaction.
	Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error

	// FetchPending returns up to limit pending rows with attempts below
	// maxAttempts, oldest first.
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error)

	// MarkPublished flips the row to published with the given timestamp.
	MarkPublished(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error

	// MarkFailed flips the row to failed, recording the terminal reason.
	MarkFailed(ctx context.Context, tx *sqlx.Tx, id, reason string) error

	// RecordAttempt persists an incremented attempt count and last error,
	// leaving the row pending for the next poll.
	RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error

	// CountByStatus returns row counts grouped by status.
	CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error)

	// RecentPublished returns the most recently published rows, newest
	// first, for publish-lag sampling.
	RecentPublished(ctx context.Context, limit int) ([]model.OutboxEvent, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error {
	const q = `
		INSERT INTO outbox
			(id, tenant_id, event_type, aggregate_id, payload, dedupe_key,
			 status, attempts, last_error, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sqlutil.Ext(tx, r.db).ExecContext(ctx, q,
		ev.ID, ev.TenantID, ev.EventType, ev.AggregateID, []byte(ev.Payload), ev.DedupeKey,
		ev.Status.String(), ev.Attempts, ev.LastError, ev.OccurredAt, ev.CreatedAt,
	)

	return err
}

func (r *OutboxRepositoryImpl) FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error) {
	const q = `
		SELECT id, tenant_id, event_type, aggregate_id, payload, dedupe_key,
		       status, attempts, last_error, occurred_at, published_at, created_at
		FROM outbox
		WHERE status = ? AND attempts < ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	var rows []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &rows, q, model.OutboxStatusPending.String(), maxAttempts, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error {
	const q = `UPDATE outbox SET status = ?, published_at = ?, last_error = '' WHERE id = ?`
	_, err := sqlutil.Ext(tx, r.db).ExecContext(ctx, q, model.OutboxStatusPublished.String(), at, id)

	return err
}

func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, tx *sqlx.Tx, id, reason string) error {
	const q = `UPDATE outbox SET status = ?, last_error = ? WHERE id = ?`
	_, err := sqlutil.Ext(tx, r.db).ExecContext(ctx, q, model.OutboxStatusFailed.String(), reason, id)

	return err
}

func (r *OutboxRepositoryImpl) RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error {
	const q = `UPDATE outbox SET attempts = ?, last_error = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, attempts, lastError, id)

	return err
}

func (r *OutboxRepositoryImpl) CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error) {
	const q = `SELECT status, COUNT(*) AS cnt FROM outbox GROUP BY status`

	var rows []struct {
		Status string `db:"status"`
		Cnt    int64  `db:"cnt"`
	}
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}

	counts := make(map[model.OutboxStatus]int64, len(rows))
	for _, row := range rows {
		counts[model.OutboxStatus(row.Status)] = row.Cnt
	}
	return counts, nil
}

func (r *OutboxRepositoryImpl) RecentPublished(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	const q = `
		SELECT id, tenant_id, event_type, aggregate_id, payload, dedupe_key,
		       status, attempts, last_error, occurred_at, published_at, created_at
		FROM outbox
		WHERE status = ? AND published_at IS NOT NULL
		ORDER BY published_at DESC
		LIMIT ?
	`
	var rows []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &rows, q, model.OutboxStatusPublished.String(), limit); err != nil {
		return nil, err
	}
	return rows, nil
}
