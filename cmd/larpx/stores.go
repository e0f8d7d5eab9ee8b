package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"larpx402/internal/config"
	"larpx402/internal/storage"
	chstore "larpx402/internal/storage/clickhouse"
	"larpx402/internal/storage/memory"
	pgstore "larpx402/internal/storage/postgres"
)

// allStores holds the stores for the configured backend.
type allStores struct {
	launches storage.LaunchStore
	scans    storage.ScanHistoryStore

	// feed delivers every inserted launch to fn until ctx is done.
	feed func(ctx context.Context, fn storage.LaunchSubscriber) error
}

// createStores opens the configured backend. Scan history goes to
// ClickHouse when a DSN is set, otherwise next to the launches.
func createStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*allStores, func(), error) {
	if cfg.StorageBackend == config.BackendMemory {
		launches := memory.NewLaunchStore()
		stores := &allStores{
			launches: launches,
			scans:    memory.NewScanHistoryStore(),
			feed: func(ctx context.Context, fn storage.LaunchSubscriber) error {
				launches.OnInsert(fn)
				<-ctx.Done()
				return ctx.Err()
			},
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	launches := pgstore.NewLaunchStore(pool)
	listener := pgstore.NewLaunchListener(pool, launches, logger.Named("listener"))

	stores := &allStores{
		launches: launches,
		scans:    pgstore.NewScanHistoryStore(pool),
		feed:     listener.Run,
	}
	cleanup := pool.Close

	// ClickHouse
	if cfg.ClickHouseDSN != "" {
		chConn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.scans = chstore.NewScanHistoryStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}
