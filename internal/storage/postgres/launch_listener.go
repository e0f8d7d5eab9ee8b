package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"larpx402/internal/storage"
)

// LaunchInsertedChannel is the NOTIFY channel written by the launches_notify trigger.
const LaunchInsertedChannel = "launch_inserted"

// LaunchListener turns Postgres notifications into launch callbacks.
// Every process sharing the database sees every insert, regardless of
// which process wrote it.
type LaunchListener struct {
	pool       *Pool
	store      *LaunchStore
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewLaunchListener creates a listener reading rows through store.
func NewLaunchListener(pool *Pool, store *LaunchStore, logger *zap.Logger) *LaunchListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LaunchListener{
		pool:       pool,
		store:      store,
		logger:     logger,
		retryDelay: 2 * time.Second,
	}
}

// Run blocks until ctx is done, re-establishing the LISTEN session on failure.
func (l *LaunchListener) Run(ctx context.Context, fn storage.LaunchSubscriber) error {
	for {
		err := l.listen(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("launch listener disconnected", zap.Error(err), zap.Duration("retry_in", l.retryDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *LaunchListener) listen(ctx context.Context, fn storage.LaunchSubscriber) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+LaunchInsertedChannel); err != nil {
		return fmt.Errorf("listen %s: %w", LaunchInsertedChannel, err)
	}
	l.logger.Info("listening for launch inserts", zap.String("channel", LaunchInsertedChannel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		launch, err := l.store.GetByID(ctx, n.Payload)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				l.logger.Warn("notified launch not found", zap.String("id", n.Payload))
				continue
			}
			return err
		}
		fn(launch)
	}
}
