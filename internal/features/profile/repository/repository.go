package repository

import (
	"context"
	"errors"

	"backbencher-auth-gateway/internal/features/profile/models"
)

// ErrSnapshotNotFound is returned when no cached snapshot exists for a uid.
var ErrSnapshotNotFound = errors.New("profile snapshot not found")

// SnapshotStore persists cached profile snapshots. Set replaces the whole
// value atomically; Clear removes every entry belonging to the uid.
type SnapshotStore interface {
	Get(ctx context.Context, uid string) (*models.Snapshot, error)
	Set(ctx context.Context, uid string, snap *models.Snapshot) error
	Clear(ctx context.Context, uid string) error
}
