package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"larpx402/internal/storage/migrations"
	pgstore "larpx402/internal/storage/postgres"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded PostgreSQL and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), a)
		},
	}
	f := cmd.Flags()
	f.String("postgres-dsn", "", "PostgreSQL connection string")
	f.String("clickhouse-dsn", "", "ClickHouse connection string")
	bindFlags(a.v, f, map[string]string{
		"postgres-dsn":   "postgres_dsn",
		"clickhouse-dsn": "clickhouse_dsn",
	})
	return cmd
}

func runMigrate(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	if cfg.PostgresDSN == "" && cfg.ClickHouseDSN == "" {
		return errors.New("nothing to migrate: set postgres_dsn and/or clickhouse_dsn")
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		logger.Info("postgres migrations applied", zap.Strings("files", applied))
	}

	if cfg.ClickHouseDSN != "" {
		conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		defer conn.Close()
		logger.Info("clickhouse migrations applied",
			zap.String("dsn", redact(cfg.ClickHouseDSN)),
			zap.Strings("files", applied))
	}
	return nil
}

// redact masks the password of a DSN for logging.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "<unparseable dsn>"
	}
	return u.Redacted()
}
