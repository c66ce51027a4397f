package worker

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/config"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/consumer"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/consumer/analytics"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/consumer/forwarder"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/db"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/kafka"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/logger"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/metrics"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/worker"
)

var consumersCmd = &cobra.Command{
	Use:   "consumers",
	Short: "Run the registered event-log consumers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		logg := logger.L()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		consumers, cleanup, err := buildConsumers(cfg, mysqlDB, logg)
		if err != nil {
			return err
		}
		defer cleanup()

		if len(consumers) == 0 {
			return fmt.Errorf("no consumers enabled in config")
		}

		w := worker.NewConsumerWorker(consumers, logg)
		w.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logg.Info("signal received, shutting down", zap.String("signal", sig.String()))

		w.Stop()
		return nil
	},
}

// buildConsumers wires every enabled concrete consumer against the shared
// MySQL-backed log/checkpoint/DLQ repositories. The returned cleanup closes
// sink-owned connections.
func buildConsumers(cfg config.Config, mysqlDB *sqlx.DB, logg *zap.Logger) ([]*consumer.Consumer, func(), error) {
	logRepo := repository.NewEventLogRepository(mysqlDB)
	checkpointRepo := repository.NewCheckpointRepository(mysqlDB)
	dlqRepo := repository.NewDLQRepository(mysqlDB)

	ccfg := consumer.Config{
		PollInterval: cfg.Consumer.PollInterval,
		BatchSize:    cfg.Consumer.BatchSize,
		MaxAttempts:  cfg.Consumer.MaxAttempts,
	}

	var (
		consumers []*consumer.Consumer
		closers   []func()
	)
	cleanup := func() {
		for _, fn := range closers {
			fn()
		}
	}

	if cfg.Forwarder.Enabled {
		producer := kafka.NewProducerFromConfig(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		closers = append(closers, func() { _ = producer.Close() })

		fwd := forwarder.New(producer, cfg.Kafka.TopicPrefix, cfg.Forwarder.Subscription)
		consumers = append(consumers, consumer.New(fwd, logRepo, checkpointRepo, dlqRepo, ccfg, logg))
	}

	if cfg.Analytics.Enabled {
		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:             cfg.ClickHouse.DSN,
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("clickhouse connect: %w", err)
		}
		closers = append(closers, func() { _ = chDB.Close() })

		sink := analytics.New(chDB, cfg.Analytics.Subscription)
		consumers = append(consumers, consumer.New(sink, logRepo, checkpointRepo, dlqRepo, ccfg, logg))
	}

	return consumers, cleanup, nil
}
