package consumer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Replay reprocesses this consumer's subscribed events in the sequence range
// [fromSeq, toSeq] synchronously and in order, bypassing the poll cadence.
// toSeq <= 0 means "to the current end of the log". Matching checkpoint rows
// are deleted first, so afterwards each event's checkpoint reflects the
// replay's outcome, not the original run's. This is the one operation that
// may regress the effective checkpoint; the in-memory cursor is re-derived
// from storage when it finishes.
func (c *Consumer) Replay(ctx context.Context, fromSeq, toSeq int64) error {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	name := c.proc.Name()

	entries, err := c.log.FetchRange(ctx, fromSeq, toSeq, c.proc.Subscription())
	if err != nil {
		return fmt.Errorf("consumer %s: replay fetch: %w", name, err)
	}
	if len(entries) == 0 {
		c.logg.Info("replay matched no events",
			zap.Int64("from", fromSeq), zap.Int64("to", toSeq))
		return nil
	}

	eventIDs := make([]string, len(entries))
	for i, e := range entries {
		eventIDs[i] = e.EventID
	}
	if err := c.checkpoints.DeleteByEventIDs(ctx, name, eventIDs); err != nil {
		return fmt.Errorf("consumer %s: replay reset checkpoints: %w", name, err)
	}

	c.logg.Info("replay started",
		zap.Int64("from", fromSeq),
		zap.Int64("to", toSeq),
		zap.Int("events", len(entries)))

	for i := range entries {
		// Event failures follow the normal retry/DLQ bookkeeping but never
		// abort the replay: later events in the range still get their turn.
		c.processOne(ctx, &entries[i])
	}

	// The cursor may have regressed; storage is the source of truth.
	seq, err := c.checkpoints.MaxCompletedSequence(ctx, name)
	if err != nil {
		c.cursorLoaded = false
		return fmt.Errorf("consumer %s: reload checkpoint after replay: %w", name, err)
	}
	c.cursor = seq
	c.cursorLoaded = true

	c.logg.Info("replay finished", zap.Int64("cursor", seq))
	return nil
}
