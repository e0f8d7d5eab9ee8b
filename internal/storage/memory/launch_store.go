package memory

import (
	"context"
	"sort"
	"sync"

	"larpx402/internal/domain"
	"larpx402/internal/storage"
)

// LaunchStore is an in-memory implementation of storage.LaunchStore.
type LaunchStore struct {
	mu          sync.RWMutex
	byID        map[string]*domain.LaunchRecord
	ordered     []*domain.LaunchRecord // insertion order
	subscribers []storage.LaunchSubscriber
}

// NewLaunchStore creates a new in-memory launch store.
func NewLaunchStore() *LaunchStore {
	return &LaunchStore{
		byID: make(map[string]*domain.LaunchRecord),
	}
}

// OnInsert registers fn to be called with a copy of every inserted launch.
// Callbacks run synchronously after the write lock is released.
func (s *LaunchStore) OnInsert(fn storage.LaunchSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Insert adds a confirmed launch. Returns ErrDuplicateKey if the ID exists.
func (s *LaunchStore) Insert(_ context.Context, l *domain.LaunchRecord) error {
	if l == nil || l.ID == "" || l.TokenIdentity == "" || l.TransactionSignature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	if _, exists := s.byID[l.ID]; exists {
		s.mu.Unlock()
		return storage.ErrDuplicateKey
	}
	launchCopy := *l
	s.byID[l.ID] = &launchCopy
	s.ordered = append(s.ordered, &launchCopy)
	subs := append([]storage.LaunchSubscriber(nil), s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		out := launchCopy
		fn(&out)
	}
	return nil
}

// GetByID retrieves a launch by record ID. Returns ErrNotFound if not exists.
func (s *LaunchStore) GetByID(_ context.Context, id string) (*domain.LaunchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	launchCopy := *l
	return &launchCopy, nil
}

// GetByMint retrieves the newest launch of a token. Returns ErrNotFound if not exists.
func (s *LaunchStore) GetByMint(_ context.Context, mint string) (*domain.LaunchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.LaunchRecord
	for _, l := range s.ordered {
		if l.TokenIdentity != mint {
			continue
		}
		if found == nil || l.CreatedAt >= found.CreatedAt {
			found = l
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	launchCopy := *found
	return &launchCopy, nil
}

// List retrieves up to limit launches ordered by created_at DESC.
func (s *LaunchStore) List(_ context.Context, limit int) ([]*domain.LaunchRecord, error) {
	limit = storage.ClampLimit(limit)

	s.mu.RLock()
	result := make([]*domain.LaunchRecord, 0, len(s.ordered))
	for i := len(s.ordered) - 1; i >= 0; i-- {
		launchCopy := *s.ordered[i]
		result = append(result, &launchCopy)
	}
	s.mu.RUnlock()

	// Stable keeps later inserts first on equal timestamps
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.LaunchStore = (*LaunchStore)(nil)
