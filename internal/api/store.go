package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/geodir/internal/engine/session"
)

// Store keeps browsing sessions by id and expires idle ones.
type Store struct {
	ttl     time.Duration
	factory func(id string) *session.Session
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func NewStore(ttl time.Duration, factory func(id string) *session.Session, logger *slog.Logger) *Store {
	return &Store{
		ttl:      ttl,
		factory:  factory,
		logger:   logger,
		sessions: make(map[string]*session.Session),
	}
}

// Create starts a session under a fresh id.
func (s *Store) Create() *session.Session {
	id := uuid.NewString()
	sess := s.factory(id)
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session and marks it active.
func (s *Store) Get(id string) (*session.Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.Touch()
	}
	return sess, ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle since before now-ttl and returns how many.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastAccess()) > s.ttl {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(max(s.ttl/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.Info("expired sessions", "count", n, "active", s.Len())
			}
		}
	}
}
