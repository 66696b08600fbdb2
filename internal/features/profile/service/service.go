package service

import (
	"context"
	"sync"
	"time"

	apperrors "backbencher-auth-gateway/internal/common/errors"
	"backbencher-auth-gateway/internal/common/logger"
	"backbencher-auth-gateway/internal/features/profile/models"
	"backbencher-auth-gateway/internal/features/profile/repository"
)

// UsersAPI is the slice of the backend user service the synchronizer needs.
type UsersAPI interface {
	GetUser(ctx context.Context, uid string) (*models.Profile, error)
}

// Service keeps a profile snapshot available for the current session with
// minimal redundant network traffic. Fetch failures degrade to cached or
// default data, they are never surfaced to navigation.
type Service interface {
	// Bind declares which session identifier results may be persisted for.
	// Late results for any other identifier are discarded.
	Bind(uid string)

	// Sync returns the profile snapshot for uid. With force false a fresh
	// cached snapshot short-circuits the network entirely.
	Sync(ctx context.Context, uid string, force bool) (*models.Snapshot, error)

	// Refresh is Sync with a forced fetch, used after profile edits so the
	// next read reflects the write.
	Refresh(ctx context.Context, uid string) (*models.Snapshot, error)

	// Invalidate clears the cached snapshot and the binding unconditionally.
	Invalidate(ctx context.Context) error
}

type synchronizer struct {
	users      UsersAPI
	store      repository.SnapshotStore
	staleAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	bound    string
	managed  bool
	inflight map[string]*fetch
}

// fetch is a single in-flight network request shared by concurrent callers.
type fetch struct {
	done chan struct{}
	snap *models.Snapshot
	err  error
}

func NewService(users UsersAPI, store repository.SnapshotStore, staleAfter time.Duration) Service {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &synchronizer{
		users:      users,
		store:      store,
		staleAfter: staleAfter,
		now:        time.Now,
		inflight:   make(map[string]*fetch),
	}
}

func (s *synchronizer) Bind(uid string) {
	s.mu.Lock()
	s.bound = uid
	s.managed = true
	s.mu.Unlock()
}

func (s *synchronizer) Sync(ctx context.Context, uid string, force bool) (*models.Snapshot, error) {
	if !force {
		if snap, err := s.store.Get(ctx, uid); err == nil && !snap.Stale(s.now(), s.staleAfter) {
			return snap, nil
		}
	}

	s.mu.Lock()
	if f, ok := s.inflight[uid]; ok {
		// Join the outstanding request instead of issuing a duplicate.
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.snap, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &fetch{done: make(chan struct{})}
	s.inflight[uid] = f
	s.mu.Unlock()

	f.snap, f.err = s.fetch(ctx, uid)

	s.mu.Lock()
	delete(s.inflight, uid)
	s.mu.Unlock()
	close(f.done)

	return f.snap, f.err
}

func (s *synchronizer) Refresh(ctx context.Context, uid string) (*models.Snapshot, error) {
	return s.Sync(ctx, uid, true)
}

func (s *synchronizer) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	uid := s.bound
	s.bound = ""
	s.managed = true
	s.mu.Unlock()

	if uid == "" {
		return nil
	}
	if err := s.store.Clear(ctx, uid); err != nil {
		return apperrors.NewCacheError("clear snapshot", err)
	}
	return nil
}

func (s *synchronizer) fetch(ctx context.Context, uid string) (*models.Snapshot, error) {
	p, err := s.users.GetUser(ctx, uid)
	if err != nil {
		// Degrade to the cached snapshot regardless of staleness, or to a
		// default profile when nothing is cached. Navigation must stay
		// possible while the backend is unreachable.
		if snap, cacheErr := s.store.Get(ctx, uid); cacheErr == nil {
			logger.Warn().Err(err).Str("uid", uid).Msg("Profile fetch failed, serving cached snapshot")
			return snap, nil
		}
		logger.Warn().Err(err).Str("uid", uid).Msg("Profile fetch failed with no cache, serving default profile")
		return &models.Snapshot{
			Profile: *models.DefaultProfile(uid),
			Role:    models.DefaultRole,
		}, nil
	}

	role := p.Role
	if role == "" {
		role = models.DefaultRole
	}
	snap := &models.Snapshot{Profile: *p, Role: role, SyncedAt: s.now()}

	s.mu.Lock()
	discard := s.managed && s.bound != uid
	s.mu.Unlock()
	if discard {
		// The session changed while this fetch was in flight. The result is
		// still returned to the caller that asked, but must not win a cache
		// race against the newer session.
		logger.Debug().Str("uid", uid).Msg("Discarding profile result for superseded session")
		return snap, nil
	}

	if err := s.store.Set(ctx, uid, snap); err != nil {
		logger.Warn().Err(err).Str("uid", uid).Msg("Failed to persist profile snapshot")
	}
	return snap, nil
}
