package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/sqlutil"
)

// DLQRepository persists terminal failure records. Rows are write-once;
// operators reprocess them out-of-band.
type DLQRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, m model.DLQMessage) error
	Count(ctx context.Context) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]model.DLQMessage, error)
}

type dlqRepository struct {
	db *sqlx.DB
}

func NewDLQRepository(db *sqlx.DB) DLQRepository {
	return &dlqRepository{db: db}
}

func (r *dlqRepository) Insert(ctx context.Context, tx *sqlx.Tx, m model.DLQMessage) error {
	const q = `
		INSERT INTO dlq_messages (consumer_name, event_id, sequence, reason, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := sqlutil.Ext(tx, r.db).ExecContext(ctx, q,
		m.ConsumerName, m.EventID, m.Sequence, m.Reason, []byte(m.Payload), m.CreatedAt,
	)

	return err
}

func (r *dlqRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	if err := r.db.GetContext(ctx, &cnt, `SELECT COUNT(*) FROM dlq_messages`); err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *dlqRepository) ListRecent(ctx context.Context, limit int) ([]model.DLQMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	const q = `
		SELECT id, consumer_name, event_id, sequence, reason, payload, created_at
		FROM dlq_messages
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	var rows []model.DLQMessage
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
