package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/config"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/db"
	httpSrv "github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/http"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/logger"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/metrics"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/redact"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/relay"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/sqlutil"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ops HTTP server (health, metrics, DLQ)",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		outboxRepo := repository.NewOutboxRepository(mysqlDB)
		logRepo := repository.NewEventLogRepository(mysqlDB)
		dlqRepo := repository.NewDLQRepository(mysqlDB)

		rel := relay.New(
			sqlutil.NewDB(mysqlDB),
			outboxRepo,
			logRepo,
			dlqRepo,
			redact.Redact,
			relay.Config{
				BatchSize:     cfg.Relay.BatchSize,
				MaxAttempts:   cfg.Relay.MaxAttempts,
				LagSampleSize: cfg.Relay.LagSampleSize,
			},
			logg,
		)

		server := httpSrv.NewServer(cfg, rel, dlqRepo, redisClient, logg)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logg.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				logg.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
