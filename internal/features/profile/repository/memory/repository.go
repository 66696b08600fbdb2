package memory

import (
	"context"
	"sync"

	"backbencher-auth-gateway/internal/features/profile/models"
	"backbencher-auth-gateway/internal/features/profile/repository"
)

// SnapshotStore is an in-memory SnapshotStore for tests and embedded use.
// Writes replace the whole snapshot, reads return copies.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]models.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]models.Snapshot)}
}

func (s *SnapshotStore) Get(ctx context.Context, uid string) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[uid]
	if !ok {
		return nil, repository.ErrSnapshotNotFound
	}
	out := snap
	return &out, nil
}

func (s *SnapshotStore) Set(ctx context.Context, uid string, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[uid] = *snap
	return nil
}

func (s *SnapshotStore) Clear(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, uid)
	return nil
}

// Len returns the number of stored snapshots.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

var _ repository.SnapshotStore = (*SnapshotStore)(nil)
