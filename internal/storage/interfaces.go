package storage

import (
	"context"

	"larpx402/internal/domain"
)

// LaunchStore provides access to launches storage.
// Rows are append-only; there is no uniqueness beyond the record ID.
type LaunchStore interface {
	// Insert adds a confirmed launch. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, l *domain.LaunchRecord) error

	// GetByID retrieves a launch by record ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.LaunchRecord, error)

	// GetByMint retrieves the newest launch of a token. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.LaunchRecord, error)

	// List retrieves up to limit launches ordered by created_at DESC.
	List(ctx context.Context, limit int) ([]*domain.LaunchRecord, error)
}

// ScanHistoryStore provides access to scan_history storage.
type ScanHistoryStore interface {
	// Insert adds a scan record.
	Insert(ctx context.Context, s *domain.ScanRecord) error

	// List retrieves up to limit records ordered by created_at DESC.
	List(ctx context.Context, limit int) ([]*domain.ScanRecord, error)

	// DeleteAll removes every record.
	DeleteAll(ctx context.Context) error
}

// LaunchSubscriber receives launches as they are inserted.
type LaunchSubscriber func(l *domain.LaunchRecord)

// DefaultListLimit is used when a caller passes a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps List page sizes.
const MaxListLimit = 500

// ClampLimit normalizes a caller-supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
