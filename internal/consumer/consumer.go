// Package consumer is the shared scheduler for event-log processors: a
// concrete consumer implements Processor, and Consumer owns subscription
// filtering, checkpointing, retry, DLQ escalation and the poll loop.
// Each consumer reads the log independently at its own pace; within one
// consumer's stream events are processed in strictly increasing sequence
// order and are never skipped except by explicit DLQ escalation.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/metrics"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 10
	DefaultMaxAttempts  = 10
)

// Result is what a Processor reports back for one event.
type Result struct {
	Success bool
	Err     error
	// Retry controls the failure path: true leaves the event for the next
	// poll, false escalates straight to the DLQ.
	Retry bool
}

// Processor is the one surface a concrete consumer implements.
type Processor interface {
	// Name identifies the consumer; checkpoints and DLQ rows are keyed by it.
	Name() string
	// Subscription is the schema-id prefix this consumer receives
	// (e.g. "meetingflow" or "foundation.ai"). Empty matches everything.
	Subscription() string
	// ProcessEvent handles one log entry. It must be idempotent: the
	// framework delivers at-least-once.
	ProcessEvent(ctx context.Context, e *model.EventLogEntry) Result
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Consumer drives one Processor against the event log.
type Consumer struct {
	proc        Processor
	log         repository.EventLogRepository
	checkpoints repository.CheckpointRepository
	dlq         repository.DLQRepository
	cfg         Config
	logg        *zap.Logger

	// lifecycle; no package-level state so instances and tests stay isolated
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	// pollMu serializes Poll and Replay so at most one run is in flight.
	pollMu sync.Mutex

	// cursor is the in-memory checkpoint: an optimization, re-derivable from
	// storage on restart.
	cursor       int64
	cursorLoaded bool
}

func New(
	proc Processor,
	logRepo repository.EventLogRepository,
	checkpointRepo repository.CheckpointRepository,
	dlqRepo repository.DLQRepository,
	cfg Config,
	logg *zap.Logger,
) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logg == nil {
		logg = zap.NewNop()
	}

	return &Consumer{
		proc:        proc,
		log:         logRepo,
		checkpoints: checkpointRepo,
		dlq:         dlqRepo,
		cfg:         cfg,
		logg:        logg.With(zap.String("consumer", proc.Name())),
	}
}

// Name reports the wrapped processor's name.
func (c *Consumer) Name() string { return c.proc.Name() }

// Start launches the poll loop: one immediate poll, then one per interval.
// Idempotent; a second Start is a no-op with a warning.
func (c *Consumer) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logg.Warn("consumer already running, ignoring start")
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.logg.Info("consumer started",
		zap.String("subscription", c.proc.Subscription()),
		zap.Duration("poll_interval", c.cfg.PollInterval))

	go c.loop()
}

// Stop cancels the poll timer and waits for any in-flight poll to finish.
// Idempotent.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.done
	c.mu.Unlock()

	<-done
	c.logg.Info("consumer stopped")
}

// loop runs polls sequentially in a single goroutine, so at most one poll is
// in flight per consumer; ticks during a long poll coalesce.
func (c *Consumer) loop() {
	defer close(c.done)

	ctx := context.Background()
	c.pollAndLog(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.pollAndLog(ctx)
		}
	}
}

func (c *Consumer) pollAndLog(ctx context.Context) {
	if err := c.Poll(ctx); err != nil {
		c.logg.Error("poll failed", zap.Error(err))
	}
}

// Poll processes one batch of subscribed log entries past the checkpoint.
// Exported for tests and for the replay command; the loop calls it on a
// timer. Event-level failures are contained; the returned error covers only
// the cursor load and the batch fetch.
func (c *Consumer) Poll(ctx context.Context) error {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	if !c.cursorLoaded {
		seq, err := c.checkpoints.MaxCompletedSequence(ctx, c.proc.Name())
		if err != nil {
			return fmt.Errorf("consumer %s: load checkpoint: %w", c.proc.Name(), err)
		}
		c.cursor = seq
		c.cursorLoaded = true
	}

	entries, err := c.log.FetchAfter(ctx, c.cursor, c.proc.Subscription(), c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("consumer %s: fetch batch: %w", c.proc.Name(), err)
	}

	for i := range entries {
		if !c.processOne(ctx, &entries[i]) {
			// Retryable failure: stop here so the cursor never advances past
			// an unprocessed event. The next poll re-fetches from this spot.
			break
		}
	}

	return nil
}

// processOne runs the full span for one entry: idempotency check, mark
// processing, invoke the processor, mark completed/failed, escalate when the
// retry budget is gone. Returns false when the batch must stall.
func (c *Consumer) processOne(ctx context.Context, e *model.EventLogEntry) bool {
	name := c.proc.Name()

	cp, err := c.checkpoints.Get(ctx, name, e.EventID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		c.logg.Error("checkpoint lookup failed",
			zap.String("event_id", e.EventID), zap.Error(err))
		return false
	}
	if cp != nil {
		if cp.Status == model.CheckpointCompleted {
			// Duplicate delivery after a restart: not an error.
			c.cursor = e.Sequence
			metrics.ConsumerEventsTotal.WithLabelValues(name, "skipped").Inc()
			return true
		}
		if cp.Attempts >= c.cfg.MaxAttempts {
			return c.escalate(ctx, e, fmt.Sprintf("exhausted %d attempts: %s", cp.Attempts, cp.LastError))
		}
	}

	attempts, err := c.checkpoints.MarkProcessing(ctx, name, e.EventID, e.Sequence)
	if err != nil {
		c.logg.Error("mark processing failed",
			zap.String("event_id", e.EventID), zap.Error(err))
		return false
	}

	res := c.proc.ProcessEvent(ctx, e)
	if res.Success {
		if err := c.checkpoints.MarkCompleted(ctx, name, e.EventID); err != nil {
			c.logg.Error("mark completed failed",
				zap.String("event_id", e.EventID), zap.Error(err))
			return false
		}
		c.cursor = e.Sequence
		metrics.ConsumerEventsTotal.WithLabelValues(name, "completed").Inc()
		return true
	}

	reason := "processor reported failure"
	if res.Err != nil {
		reason = res.Err.Error()
	}
	if err := c.checkpoints.MarkFailed(ctx, name, e.EventID, reason); err != nil {
		c.logg.Error("mark failed failed",
			zap.String("event_id", e.EventID), zap.Error(err))
		return false
	}

	if attempts >= c.cfg.MaxAttempts || !res.Retry {
		return c.escalate(ctx, e, fmt.Sprintf("exhausted %d attempts: %s", attempts, reason))
	}

	metrics.ConsumerEventsTotal.WithLabelValues(name, "retried").Inc()
	c.logg.Warn("event failed, will retry",
		zap.String("event_id", e.EventID),
		zap.Int64("sequence", e.Sequence),
		zap.Int("attempts", attempts),
		zap.String("reason", reason))
	return false
}

// escalate moves a poison event to the DLQ and advances the cursor past it:
// the one sanctioned way to skip. On DLQ write failure the cursor stays put
// so escalation is re-attempted next poll.
func (c *Consumer) escalate(ctx context.Context, e *model.EventLogEntry, reason string) bool {
	name := c.proc.Name()

	msg := model.DLQMessage{
		ConsumerName: name,
		EventID:      e.EventID,
		Sequence:     e.Sequence,
		Reason:       reason,
		Payload:      e.Payload,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.dlq.Insert(ctx, nil, msg); err != nil {
		metrics.DLQWriteFailuresTotal.Inc()
		c.logg.Error("DLQ write failed, stalling for retry",
			zap.String("event_id", e.EventID), zap.Error(err))
		return false
	}

	if err := c.checkpoints.MarkFailed(ctx, name, e.EventID, reason); err != nil {
		c.logg.Error("mark failed after escalation failed",
			zap.String("event_id", e.EventID), zap.Error(err))
	}

	c.cursor = e.Sequence
	metrics.ConsumerEventsTotal.WithLabelValues(name, "dlq").Inc()
	c.logg.Error("event moved to DLQ",
		zap.String("event_id", e.EventID),
		zap.Int64("sequence", e.Sequence),
		zap.String("reason", reason))
	return true
}
