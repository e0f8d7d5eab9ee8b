package postgres

import (
	"context"
	"fmt"
	"time"

	"larpx402/internal/domain"
	"larpx402/internal/storage"
)

// ScanHistoryStore implements storage.ScanHistoryStore using PostgreSQL.
type ScanHistoryStore struct {
	pool *Pool
}

// NewScanHistoryStore creates a new ScanHistoryStore.
func NewScanHistoryStore(pool *Pool) *ScanHistoryStore {
	return &ScanHistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScanHistoryStore = (*ScanHistoryStore)(nil)

// Insert adds a scan record.
func (s *ScanHistoryStore) Insert(ctx context.Context, r *domain.ScanRecord) (err error) {
	defer observe("insert_scan", time.Now(), &err)
	if r == nil || r.ID == "" || !r.ScanType.Valid() {
		return storage.ErrInvalidInput
	}

	threats := r.Threats
	if threats == nil {
		threats = []string{}
	}

	query := `
		INSERT INTO scan_history (
			id, scan_type, target, threats_found, threats, duration_ms, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ID,
		string(r.ScanType),
		r.Target,
		r.ThreatsFound,
		threats,
		r.DurationMs,
		r.Status,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}

// List retrieves up to limit records ordered by created_at DESC.
func (s *ScanHistoryStore) List(ctx context.Context, limit int) (_ []*domain.ScanRecord, err error) {
	defer observe("list_scans", time.Now(), &err)
	query := `
		SELECT id, scan_type, target, threats_found, threats, duration_ms, status, created_at
		FROM scan_history
		ORDER BY created_at DESC, seq DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list scan history: %w", err)
	}
	defer rows.Close()

	var result []*domain.ScanRecord
	for rows.Next() {
		var r domain.ScanRecord
		var scanType string
		if err := rows.Scan(
			&r.ID,
			&scanType,
			&r.Target,
			&r.ThreatsFound,
			&r.Threats,
			&r.DurationMs,
			&r.Status,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scan record: %w", err)
		}
		r.ScanType = domain.ScanType(scanType)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan history: %w", err)
	}
	return result, nil
}

// DeleteAll removes every record.
func (s *ScanHistoryStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scan_history`); err != nil {
		return fmt.Errorf("delete scan history: %w", err)
	}
	return nil
}
