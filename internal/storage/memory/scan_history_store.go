package memory

import (
	"context"
	"sync"

	"larpx402/internal/domain"
	"larpx402/internal/storage"
)

// ScanHistoryStore is an in-memory implementation of storage.ScanHistoryStore.
type ScanHistoryStore struct {
	mu      sync.RWMutex
	records []*domain.ScanRecord // insertion order
}

// NewScanHistoryStore creates a new in-memory scan history store.
func NewScanHistoryStore() *ScanHistoryStore {
	return &ScanHistoryStore{}
}

// Insert adds a scan record.
func (s *ScanHistoryStore) Insert(_ context.Context, r *domain.ScanRecord) error {
	if r == nil || r.ID == "" || !r.ScanType.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, copyScan(r))
	return nil
}

// List retrieves up to limit records, newest insert first.
func (s *ScanHistoryStore) List(_ context.Context, limit int) ([]*domain.ScanRecord, error) {
	limit = storage.ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ScanRecord, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, copyScan(s.records[i]))
	}
	return result, nil
}

// DeleteAll removes every record.
func (s *ScanHistoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return nil
}

func copyScan(r *domain.ScanRecord) *domain.ScanRecord {
	c := *r
	c.Threats = append([]string(nil), r.Threats...)
	return &c
}

var _ storage.ScanHistoryStore = (*ScanHistoryStore)(nil)
