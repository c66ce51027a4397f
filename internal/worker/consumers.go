package worker

import (
	"go.uber.org/zap"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/consumer"
)

// ConsumerWorker starts and stops a set of registered consumers together.
// Each consumer owns its own poll loop; this wrapper only fans lifecycle out.
type ConsumerWorker struct {
	consumers []*consumer.Consumer
	logg      *zap.Logger
}

func NewConsumerWorker(consumers []*consumer.Consumer, logg *zap.Logger) *ConsumerWorker {
	if logg == nil {
		logg = zap.NewNop()
	}
	return &ConsumerWorker{consumers: consumers, logg: logg}
}

func (w *ConsumerWorker) Start() {
	w.logg.Info("starting consumers", zap.Int("count", len(w.consumers)))
	for _, c := range w.consumers {
		c.Start()
	}
}

func (w *ConsumerWorker) Stop() {
	for _, c := range w.consumers {
		c.Stop()
	}
	w.logg.Info("consumers stopped")
}
