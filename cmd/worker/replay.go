package worker

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/config"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/db"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/logger"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/metrics"
)

var (
	replayFrom int64
	replayTo   int64
)

var replayCmd = &cobra.Command{
	Use:   "replay <consumer-name>",
	Short: "Replay a sequence range for one consumer (backfill / bug-fix reprocessing)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		logg := logger.L()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		if replayFrom <= 0 {
			return fmt.Errorf("--from must be a positive sequence number")
		}

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

		name := args[0]
		for _, c := range consumers {
			if c.Name() == name {
				return c.Replay(context.Background(), replayFrom, replayTo)
			}
		}
		return fmt.Errorf("unknown or disabled consumer %q", name)
	},
}

func init() {
	replayCmd.Flags().Int64Var(&replayFrom, "from", 0, "first sequence to replay (required)")
	replayCmd.Flags().Int64Var(&replayTo, "to", 0, "last sequence to replay (0 = end of log)")
}
