// Package worker holds the thin process wrappers: they own the timers and
// lifecycle for the relay and the registered consumers, nothing more. Each
// instance carries its own state so tests and multiple instances never share
// hidden globals.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/relay"
)

const (
	DefaultRelayInterval   = 2 * time.Second
	DefaultMetricsInterval = 60 * time.Second
)

// RelayWorker runs the relay on a fixed interval and logs aggregate metrics
// periodically.
type RelayWorker struct {
	relay           *relay.Relay
	interval        time.Duration
	metricsInterval time.Duration
	logg            *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func NewRelayWorker(r *relay.Relay, interval, metricsInterval time.Duration, logg *zap.Logger) *RelayWorker {
	if interval <= 0 {
		interval = DefaultRelayInterval
	}
	if metricsInterval <= 0 {
		metricsInterval = DefaultMetricsInterval
	}
	if logg == nil {
		logg = zap.NewNop()
	}

	return &RelayWorker{
		relay:           r,
		interval:        interval,
		metricsInterval: metricsInterval,
		logg:            logg,
	}
}

// Start launches the relay loop. Idempotent; a second Start warns and
// returns.
func (w *RelayWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logg.Warn("relay worker already running, ignoring start")
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.logg.Info("relay worker started", zap.Duration("interval", w.interval))
	go w.loop()
}

// Stop cancels the timers and waits for an in-flight batch to finish.
func (w *RelayWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logg.Info("relay worker stopped")
}

func (w *RelayWorker) loop() {
	defer close(w.done)

	ctx := context.Background()
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	metricsTicker := time.NewTicker(w.metricsInterval)
	defer metricsTicker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick(ctx)
		case <-metricsTicker.C:
			w.logMetrics(ctx)
		}
	}
}

func (w *RelayWorker) tick(ctx context.Context) {
	stats, err := w.relay.ProcessBatch(ctx)
	if err != nil {
		w.logg.Error("relay batch failed", zap.Error(err))
		return
	}
	if stats.Processed+stats.Failed+stats.Skipped > 0 {
		w.logg.Info("relay batch done",
			zap.Int("processed", stats.Processed),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped))
	}
}

func (w *RelayWorker) logMetrics(ctx context.Context) {
	m, err := w.relay.Metrics(ctx)
	if err != nil {
		w.logg.Error("relay metrics read failed", zap.Error(err))
		return
	}
	w.logg.Info("relay metrics",
		zap.Int64("pending", m.Pending),
		zap.Int64("published", m.Published),
		zap.Int64("failed", m.Failed),
		zap.Int64("dlq", m.DLQ),
		zap.Float64("avg_publish_lag_ms", m.AvgPublishLagMS))
}
