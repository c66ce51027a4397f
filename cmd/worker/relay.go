package worker

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/config"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/db"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/logger"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/metrics"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/redact"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/relay"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/sqlutil"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/worker"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the outbox relay worker",
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

		rel := relay.New(
			sqlutil.NewDB(mysqlDB),
			repository.NewOutboxRepository(mysqlDB),
			repository.NewEventLogRepository(mysqlDB),
			repository.NewDLQRepository(mysqlDB),
			redact.Redact,
			relay.Config{
				BatchSize:     cfg.Relay.BatchSize,
				MaxAttempts:   cfg.Relay.MaxAttempts,
				LagSampleSize: cfg.Relay.LagSampleSize,
			},
			logg,
		)

		w := worker.NewRelayWorker(rel, cfg.Relay.Interval, cfg.Relay.MetricsInterval, logg)
		w.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logg.Info("signal received, shutting down", zap.String("signal", sig.String()))

		w.Stop()
		return nil
	},
}
