package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"otc-service/internal/audit"
	"otc-service/internal/client"
	"otc-service/internal/config"
	"otc-service/internal/repository/mongodb"
	"otc-service/internal/repository/scylla"
	"otc-service/internal/util"
)

const migrateTimeout = 2 * time.Minute

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create tables and indexes for the configured backends",
		Long: `
Creates the Scylla keyspace and tables, the MongoDB TTL and unique indexes, and the
ClickHouse audit table, for whichever of them the configuration uses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer util.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()
			return migrate(ctx, cfg)
		},
	}
}

func uses(cfg *config.Config, backend string) bool {
	return cfg.Storage.Credentials == backend || cfg.Storage.Accounts == backend
}

func migrate(ctx context.Context, cfg *config.Config) error {
	ran := 0

	if uses(cfg, config.BackendScylla) {
		if err := scylla.Migrate(ctx, cfg); err != nil {
			return err
		}
		ran++
	}

	if uses(cfg, config.BackendMongo) {
		c, err := client.NewMongoClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close(context.Background())
		if err := mongodb.EnsureIndexes(ctx, c); err != nil {
			return err
		}
		ran++
	}

	if cfg.Clickhouse.Enabled {
		c, err := client.NewClickHouseClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Exec(ctx, audit.ClickHouseSchema); err != nil {
			return fmt.Errorf("clickhouse migration failed: %w", err)
		}
		ran++
	}

	util.Info("Migrations complete", util.Int("targets", ran))
	return nil
}
