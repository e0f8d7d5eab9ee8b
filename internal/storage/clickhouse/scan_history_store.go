package clickhouse

import (
	"context"
	"fmt"
	"time"

	"larpx402/internal/domain"
	"larpx402/internal/storage"
)

// ScanHistoryStore implements storage.ScanHistoryStore using ClickHouse.
// MergeTree does not enforce uniqueness; IDs are generated per scan.
type ScanHistoryStore struct {
	conn *Conn
}

// NewScanHistoryStore creates a new ScanHistoryStore.
func NewScanHistoryStore(conn *Conn) *ScanHistoryStore {
	return &ScanHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScanHistoryStore = (*ScanHistoryStore)(nil)

// Insert adds a scan record.
func (s *ScanHistoryStore) Insert(ctx context.Context, r *domain.ScanRecord) (err error) {
	defer observe("insert_scan", time.Now(), &err)
	if r == nil || r.ID == "" || !r.ScanType.Valid() || r.ThreatsFound < 0 {
		return storage.ErrInvalidInput
	}

	threats := r.Threats
	if threats == nil {
		threats = []string{}
	}

	query := `
		INSERT INTO scan_history (
			id, scan_type, target, threats_found, threats, duration_ms, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		r.ID,
		string(r.ScanType),
		r.Target,
		uint32(r.ThreatsFound),
		threats,
		r.DurationMs,
		r.Status,
		r.CreatedAt,
	)
	if err != nil {
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
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list scan history: %w", err)
	}
	defer rows.Close()

	var result []*domain.ScanRecord
	for rows.Next() {
		var (
			r            domain.ScanRecord
			scanType     string
			threatsFound uint32
		)
		if err := rows.Scan(
			&r.ID,
			&scanType,
			&r.Target,
			&threatsFound,
			&r.Threats,
			&r.DurationMs,
			&r.Status,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scan record: %w", err)
		}
		r.ScanType = domain.ScanType(scanType)
		r.ThreatsFound = int(threatsFound)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan history: %w", err)
	}
	return result, nil
}

// DeleteAll removes every record.
func (s *ScanHistoryStore) DeleteAll(ctx context.Context) error {
	if err := s.conn.Exec(ctx, `TRUNCATE TABLE IF EXISTS scan_history`); err != nil {
		return fmt.Errorf("truncate scan history: %w", err)
	}
	return nil
}
