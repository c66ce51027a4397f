package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
)

// CheckpointRepository tracks per-consumer processing state, keyed by
// (consumer_name, event_id). Only the owning consumer's loop or its replay
// path writes a given pair.
type CheckpointRepository interface {
	// Get returns the checkpoint row for one (consumer, event) pair, or ErrNotFound.
	Get(ctx context.Context, consumer, eventID string) (*model.ConsumerCheckpoint, error)

	// MaxCompletedSequence returns the consumer's effective cursor: the
	// highest sequence with status=completed, or 0 when none exists.
	MaxCompletedSequence(ctx context.Context, consumer string) (int64, error)

	// MarkProcessing upserts the pair into processing state, incrementing
	// attempts, and returns the attempt count after the increment.
	MarkProcessing(ctx context.Context, consumer, eventID string, sequence int64) (int, error)

	// MarkCompleted flips the pair to completed.
	MarkCompleted(ctx context.Context, consumer, eventID string) error

	// MarkFailed flips the pair to failed with the given error text.
	MarkFailed(ctx context.Context, consumer, eventID, lastError string) error

	// DeleteByEventIDs removes the consumer's rows for the given event ids.
	// Used only by replay.
	DeleteByEventIDs(ctx context.Context, consumer string, eventIDs []string) error
}

type checkpointRepository struct {
	db *sqlx.DB
}

func NewCheckpointRepository(db *sqlx.DB) CheckpointRepository {
	return &checkpointRepository{db: db}
}

func (r *checkpointRepository) Get(ctx context.Context, consumer, eventID string) (*model.ConsumerCheckpoint, error) {
	const q = `
		SELECT consumer_name, event_id, sequence, status, attempts, last_error, processed_at
		FROM consumer_checkpoints
		WHERE consumer_name = ? AND event_id = ?
	`
	var cp model.ConsumerCheckpoint
	if err := r.db.GetContext(ctx, &cp, q, consumer, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cp, nil
}

func (r *checkpointRepository) MaxCompletedSequence(ctx context.Context, consumer string) (int64, error) {
	const q = `
		SELECT COALESCE(MAX(sequence), 0)
		FROM consumer_checkpoints
		WHERE consumer_name = ? AND status = ?
	`
	var seq int64
	if err := r.db.GetContext(ctx, &seq, q, consumer, model.CheckpointCompleted.String()); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *checkpointRepository) MarkProcessing(ctx context.Context, consumer, eventID string, sequence int64) (int, error) {
	const q = `
		INSERT INTO consumer_checkpoints
			(consumer_name, event_id, sequence, status, attempts, last_error)
		VALUES (?, ?, ?, ?, 1, '')
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			attempts = attempts + 1
	`
	if _, err := r.db.ExecContext(ctx, q, consumer, eventID, sequence, model.CheckpointProcessing.String()); err != nil {
		return 0, err
	}

	var attempts int
	const sel = `SELECT attempts FROM consumer_checkpoints WHERE consumer_name = ? AND event_id = ?`
	if err := r.db.GetContext(ctx, &attempts, sel, consumer, eventID); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *checkpointRepository) MarkCompleted(ctx context.Context, consumer, eventID string) error {
	const q = `
		UPDATE consumer_checkpoints
		SET status = ?, last_error = '', processed_at = ?
		WHERE consumer_name = ? AND event_id = ?
	`
	_, err := r.db.ExecContext(ctx, q, model.CheckpointCompleted.String(), time.Now().UTC(), consumer, eventID)

	return err
}

func (r *checkpointRepository) MarkFailed(ctx context.Context, consumer, eventID, lastError string) error {
	const q = `
		UPDATE consumer_checkpoints
		SET status = ?, last_error = ?, processed_at = ?
		WHERE consumer_name = ? AND event_id = ?
	`
	_, err := r.db.ExecContext(ctx, q, model.CheckpointFailed.String(), lastError, time.Now().UTC(), consumer, eventID)

	return err
}

func (r *checkpointRepository) DeleteByEventIDs(ctx context.Context, consumer string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	q, args, err := sqlx.In(
		`DELETE FROM consumer_checkpoints WHERE consumer_name = ? AND event_id IN (?)`,
		consumer, eventIDs,
	)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(q), args...)

	return err
}
