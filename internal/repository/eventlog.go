package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/sqlutil"
)

// EventLogRepository persists the append-only event log. The sequence column
// is assigned by the database at insert time and is the only total order
// consumers rely on. Rows are never updated or deleted.
type EventLogRepository interface {
	// Insert appends one entry and returns its assigned sequence.
	// A colliding event id yields ErrDuplicateEventID.
	Insert(ctx context.Context, tx *sqlx.Tx, e *model.EventLogEntry) (int64, error)

	// GetByEventID returns the entry for an event id, or ErrNotFound.
	GetByEventID(ctx context.Context, eventID string) (*model.EventLogEntry, error)

	// FetchAfter returns up to limit entries with sequence > afterSeq whose
	// schema id starts with schemaPrefix, in ascending sequence order.
	// An empty prefix matches everything.
	FetchAfter(ctx context.Context, afterSeq int64, schemaPrefix string, limit int) ([]model.EventLogEntry, error)

	// FetchRange returns entries with fromSeq <= sequence <= toSeq matching
	// schemaPrefix, ascending. toSeq <= 0 means "to the end of the log".
	FetchRange(ctx context.Context, fromSeq, toSeq int64, schemaPrefix string) ([]model.EventLogEntry, error)
}

type eventLogRepository struct {
	db *sqlx.DB
}

func NewEventLogRepository(db *sqlx.DB) EventLogRepository {
	return &eventLogRepository{db: db}
}

const eventLogColumns = `
	sequence, event_id, tenant_id, schema_id, schema_version,
	trace_id, correlation_id, actor_user_id, payload, payload_hash, published_at
`

func (r *eventLogRepository) Insert(ctx context.Context, tx *sqlx.Tx, e *model.EventLogEntry) (int64, error) {
	const q = `
		INSERT INTO event_log
			(event_id, tenant_id, schema_id, schema_version,
			 trace_id, correlation_id, actor_user_id, payload, payload_hash, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := sqlutil.Ext(tx, r.db).ExecContext(ctx, q,
		e.EventID, e.TenantID, e.SchemaID, e.SchemaVersion,
		e.TraceID, e.CorrelationID, e.ActorUserID, []byte(e.Payload), e.PayloadHash, e.PublishedAt,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 { // duplicate key
			return 0, ErrDuplicateEventID
		}
		return 0, err
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.Sequence = seq

	return seq, nil
}

func (r *eventLogRepository) GetByEventID(ctx context.Context, eventID string) (*model.EventLogEntry, error) {
	q := `SELECT ` + eventLogColumns + ` FROM event_log WHERE event_id = ?`

	var e model.EventLogEntry
	if err := r.db.GetContext(ctx, &e, q, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *eventLogRepository) FetchAfter(ctx context.Context, afterSeq int64, schemaPrefix string, limit int) ([]model.EventLogEntry, error) {
	q := `SELECT ` + eventLogColumns + ` FROM event_log WHERE sequence > ?`
	args := []any{afterSeq}

	if schemaPrefix != "" {
		q += ` AND schema_id LIKE ?`
		args = append(args, likePrefix(schemaPrefix))
	}

	q += ` ORDER BY sequence ASC LIMIT ?`
	args = append(args, limit)

	var rows []model.EventLogEntry
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *eventLogRepository) FetchRange(ctx context.Context, fromSeq, toSeq int64, schemaPrefix string) ([]model.EventLogEntry, error) {
	q := `SELECT ` + eventLogColumns + ` FROM event_log WHERE sequence >= ?`
	args := []any{fromSeq}

	if toSeq > 0 {
		q += ` AND sequence <= ?`
		args = append(args, toSeq)
	}
	if schemaPrefix != "" {
		q += ` AND schema_id LIKE ?`
		args = append(args, likePrefix(schemaPrefix))
	}

	q += ` ORDER BY sequence ASC`

	var rows []model.EventLogEntry
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// likePrefix escapes LIKE metacharacters so a schema prefix is matched literally.
func likePrefix(prefix string) string {
	rep := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return rep.Replace(prefix) + "%"
}
