package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/model"
)

// Metrics is a point-in-time aggregate over outbox/DLQ state. Safe to poll
// frequently; pure read.
type Metrics struct {
	Pending         int64   `json:"pending"`
	Published       int64   `json:"published"`
	Failed          int64   `json:"failed"`
	DLQ             int64   `json:"dlq"`
	AvgPublishLagMS float64 `json:"avg_publish_lag_ms"`
	LagSampleSize   int     `json:"lag_sample_size"`
}

// Metrics reports outbox counts, DLQ depth and the average publish lag
// (published_at minus occurred_at) over a recent sample.
func (r *Relay) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics

	counts, err := r.outbox.CountByStatus(ctx)
	if err != nil {
		return m, fmt.Errorf("relay: count outbox: %w", err)
	}
	m.Pending = counts[model.OutboxStatusPending]
	m.Published = counts[model.OutboxStatusPublished]
	m.Failed = counts[model.OutboxStatusFailed]

	dlqCount, err := r.dlq.Count(ctx)
	if err != nil {
		return m, fmt.Errorf("relay: count dlq: %w", err)
	}
	m.DLQ = dlqCount

	sample, err := r.outbox.RecentPublished(ctx, r.cfg.LagSampleSize)
	if err != nil {
		return m, fmt.Errorf("relay: lag sample: %w", err)
	}

	var total time.Duration
	for _, ev := range sample {
		if ev.PublishedAt != nil {
			total += ev.PublishedAt.Sub(ev.OccurredAt)
		}
	}
	if len(sample) > 0 {
		m.AvgPublishLagMS = float64(total.Milliseconds()) / float64(len(sample))
		m.LagSampleSize = len(sample)
	}

	return m, nil
}
