package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backbencher-auth-gateway/internal/features/profile/models"
	"backbencher-auth-gateway/internal/features/profile/repository"
	rplatform "backbencher-auth-gateway/internal/platform/redis"
)

// SnapshotStore provides Redis-based persistence for cached profile
// snapshots. The three keys per uid mirror the client's storage layout:
// serialized profile, role string, and last-sync timestamp. They are always
// written and cleared together.
type SnapshotStore struct {
	client *rplatform.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *rplatform.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) keyProfile(uid string) string { return fmt.Sprintf("bb:user_profile:%s", uid) }
func (s *SnapshotStore) keyRole(uid string) string    { return fmt.Sprintf("bb:user_role:%s", uid) }
func (s *SnapshotStore) keySync(uid string) string    { return fmt.Sprintf("bb:last_sync:%s", uid) }

func (s *SnapshotStore) Get(ctx context.Context, uid string) (*models.Snapshot, error) {
	vals, err := s.client.MGet(ctx, s.keyProfile(uid), s.keyRole(uid), s.keySync(uid)).Result()
	if err != nil {
		return nil, err
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, repository.ErrSnapshotNotFound
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap.Profile); err != nil {
		return nil, err
	}

	if role, ok := vals[1].(string); ok {
		snap.Role = role
	} else {
		snap.Role = models.DefaultRole
	}

	syncedAt, ok := vals[2].(string)
	if !ok {
		return nil, repository.ErrSnapshotNotFound
	}
	snap.SyncedAt, err = time.Parse(time.RFC3339Nano, syncedAt)
	if err != nil {
		return nil, err
	}

	return &snap, nil
}

func (s *SnapshotStore) Set(ctx context.Context, uid string, snap *models.Snapshot) error {
	b, err := json.Marshal(&snap.Profile)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyProfile(uid), b, s.ttl)
	pipe.Set(ctx, s.keyRole(uid), snap.Role, s.ttl)
	pipe.Set(ctx, s.keySync(uid), snap.SyncedAt.Format(time.RFC3339Nano), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SnapshotStore) Clear(ctx context.Context, uid string) error {
	return s.client.Del(ctx, s.keyProfile(uid), s.keyRole(uid), s.keySync(uid)).Err()
}

var _ repository.SnapshotStore = (*SnapshotStore)(nil)
