package service

import (
	"context"
	"sync"

	"backbencher-auth-gateway/internal/common/logger"
	"backbencher-auth-gateway/internal/features/session/models"
)

// Change is delivered to subscribers on every session transition. A nil
// Session means signed out.
type Change struct {
	Session *models.Session
}

// Store holds the single authoritative answer to "who is signed in right
// now". It starts resolving and stays so until the first session event
// arrives, and never reverts afterwards. The session service is the only
// writer; everyone else observes.
type Store struct {
	mu        sync.RWMutex
	current   *models.Session
	resolving bool
	resolved  chan struct{}
	subs      map[int]chan Change
	nextID    int
}

func NewStore() *Store {
	return &Store{
		resolving: true,
		resolved:  make(chan struct{}),
		subs:      make(map[int]chan Change),
	}
}

// Current returns the current session (nil when signed out) and whether the
// store is still waiting for the first session event.
func (s *Store) Current() (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.resolving
}

// Resolving reports whether the first session event is still outstanding.
func (s *Store) Resolving() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolving
}

// WaitResolved blocks until the first session event arrives or ctx ends.
func (s *Store) WaitResolved(ctx context.Context) error {
	select {
	case <-s.resolved:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel of session changes and an unsubscribe
// function. Slow subscribers drop changes rather than block delivery.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan Change, 16)
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Set replaces the current session and notifies subscribers. Deliveries are
// serialized, at most one current value at a time.
func (s *Store) Set(sess *models.Session) {
	s.mu.Lock()
	s.current = sess
	if s.resolving {
		s.resolving = false
		close(s.resolved)
	}
	for _, ch := range s.subs {
		select {
		case ch <- Change{Session: sess}:
		default:
			logger.Warn().Msg("Dropping session change for slow subscriber")
		}
	}
	s.mu.Unlock()
}
