// Package repotest provides in-memory implementations of the repository
// interfaces for package tests. They mimic the MySQL-backed behavior
// (sequence assignment, unique event ids, prefix filtering) without a
// database.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
)

// TxRunner satisfies sqlutil.TxRunner without transactional semantics;
// grouped-write atomicity is exercised against the real store, not here.
type TxRunner struct{}

func (TxRunner) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

// ---- Outbox ----

type Outbox struct {
	mu   sync.Mutex
	rows map[string]*model.OutboxEvent
	seq  int // insertion order tiebreaker

	order map[string]int
}

func NewOutbox() *Outbox {
	return &Outbox{rows: map[string]*model.OutboxEvent{}, order: map[string]int{}}
}

func (o *Outbox) Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cp := ev
	o.rows[ev.ID] = &cp
	o.order[ev.ID] = o.seq
	o.seq++
	return nil
}

// Get returns a copy of the row for assertions.
func (o *Outbox) Get(id string) (model.OutboxEvent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ev, ok := o.rows[id]
	if !ok {
		return model.OutboxEvent{}, false
	}
	return *ev, true
}

func (o *Outbox) FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []model.OutboxEvent
	for _, ev := range o.rows {
		if ev.Status == model.OutboxStatusPending && ev.Attempts < maxAttempts {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return o.order[out[i].ID] < o.order[out[j].ID]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *Outbox) MarkPublished(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ev, ok := o.rows[id]; ok {
		t := at
		ev.Status = model.OutboxStatusPublished
		ev.PublishedAt = &t
		ev.LastError = ""
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, tx *sqlx.Tx, id, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ev, ok := o.rows[id]; ok {
		ev.Status = model.OutboxStatusFailed
		ev.LastError = reason
	}
	return nil
}

func (o *Outbox) RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ev, ok := o.rows[id]; ok {
		ev.Attempts = attempts
		ev.LastError = lastError
	}
	return nil
}

func (o *Outbox) CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := map[model.OutboxStatus]int64{}
	for _, ev := range o.rows {
		counts[ev.Status]++
	}
	return counts, nil
}

func (o *Outbox) RecentPublished(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []model.OutboxEvent
	for _, ev := range o.rows {
		if ev.Status == model.OutboxStatusPublished && ev.PublishedAt != nil {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(*out[j].PublishedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ repository.OutboxRepository = (*Outbox)(nil)

// ---- Event log ----

type EventLog struct {
	mu      sync.Mutex
	entries []model.EventLogEntry
	byID    map[string]int // event id -> index
	nextSeq int64

	// FailInserts makes the next N Insert calls fail, for transient-error tests.
	FailInserts int
	InsertErr   error
}

func NewEventLog() *EventLog {
	return &EventLog{byID: map[string]int{}, nextSeq: 1}
}

func (l *EventLog) Insert(ctx context.Context, tx *sqlx.Tx, e *model.EventLogEntry) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailInserts > 0 {
		l.FailInserts--
		return 0, l.InsertErr
	}
	if _, dup := l.byID[e.EventID]; dup {
		return 0, repository.ErrDuplicateEventID
	}

	e.Sequence = l.nextSeq
	l.nextSeq++
	l.entries = append(l.entries, *e)
	l.byID[e.EventID] = len(l.entries) - 1
	return e.Sequence, nil
}

func (l *EventLog) GetByEventID(ctx context.Context, eventID string) (*model.EventLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.byID[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := l.entries[i]
	return &cp, nil
}

func (l *EventLog) FetchAfter(ctx context.Context, afterSeq int64, schemaPrefix string, limit int) ([]model.EventLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.EventLogEntry
	for _, e := range l.entries {
		if e.Sequence > afterSeq && strings.HasPrefix(e.SchemaID, schemaPrefix) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (l *EventLog) FetchRange(ctx context.Context, fromSeq, toSeq int64, schemaPrefix string) ([]model.EventLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.EventLogEntry
	for _, e := range l.entries {
		if e.Sequence < fromSeq {
			continue
		}
		if toSeq > 0 && e.Sequence > toSeq {
			continue
		}
		if strings.HasPrefix(e.SchemaID, schemaPrefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of every entry in sequence order.
func (l *EventLog) All() []model.EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]model.EventLogEntry(nil), l.entries...)
}

var _ repository.EventLogRepository = (*EventLog)(nil)

// ---- Checkpoints ----

type Checkpoints struct {
	mu   sync.Mutex
	rows map[string]*model.ConsumerCheckpoint
}

func NewCheckpoints() *Checkpoints {
	return &Checkpoints{rows: map[string]*model.ConsumerCheckpoint{}}
}

func cpKey(consumer, eventID string) string {
	return consumer + "\x00" + eventID
}

func (c *Checkpoints) Get(ctx context.Context, consumer, eventID string) (*model.ConsumerCheckpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp, ok := c.rows[cpKey(consumer, eventID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *cp
	return &out, nil
}

func (c *Checkpoints) MaxCompletedSequence(ctx context.Context, consumer string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var max int64
	for _, cp := range c.rows {
		if cp.ConsumerName == consumer && cp.Status == model.CheckpointCompleted && cp.Sequence > max {
			max = cp.Sequence
		}
	}
	return max, nil
}

func (c *Checkpoints) MarkProcessing(ctx context.Context, consumer, eventID string, sequence int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cpKey(consumer, eventID)
	cp, ok := c.rows[key]
	if !ok {
		cp = &model.ConsumerCheckpoint{ConsumerName: consumer, EventID: eventID, Sequence: sequence}
		c.rows[key] = cp
	}
	cp.Status = model.CheckpointProcessing
	cp.Attempts++
	return cp.Attempts, nil
}

func (c *Checkpoints) MarkCompleted(ctx context.Context, consumer, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cp, ok := c.rows[cpKey(consumer, eventID)]; ok {
		now := time.Now().UTC()
		cp.Status = model.CheckpointCompleted
		cp.LastError = ""
		cp.ProcessedAt = &now
	}
	return nil
}

func (c *Checkpoints) MarkFailed(ctx context.Context, consumer, eventID, lastError string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cp, ok := c.rows[cpKey(consumer, eventID)]; ok {
		now := time.Now().UTC()
		cp.Status = model.CheckpointFailed
		cp.LastError = lastError
		cp.ProcessedAt = &now
	}
	return nil
}

func (c *Checkpoints) DeleteByEventIDs(ctx context.Context, consumer string, eventIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range eventIDs {
		delete(c.rows, cpKey(consumer, id))
	}
	return nil
}

var _ repository.CheckpointRepository = (*Checkpoints)(nil)

// ---- DLQ ----

type DLQ struct {
	mu   sync.Mutex
	rows []model.DLQMessage

	// FailInserts makes the next N Insert calls fail, for escalation-failure tests.
	FailInserts int
	InsertErr   error
}

func NewDLQ() *DLQ {
	return &DLQ{}
}

func (d *DLQ) Insert(ctx context.Context, tx *sqlx.Tx, m model.DLQMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailInserts > 0 {
		d.FailInserts--
		return d.InsertErr
	}
	m.ID = int64(len(d.rows) + 1)
	d.rows = append(d.rows, m)
	return nil
}

func (d *DLQ) Count(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return int64(len(d.rows)), nil
}

func (d *DLQ) ListRecent(ctx context.Context, limit int) ([]model.DLQMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := append([]model.DLQMessage(nil), d.rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a copy of every message.
func (d *DLQ) All() []model.DLQMessage {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]model.DLQMessage(nil), d.rows...)
}

var _ repository.DLQRepository = (*DLQ)(nil)
