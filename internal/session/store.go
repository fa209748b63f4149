// Package session keeps the per-widget conversation engines in memory and
// prunes the ones that went idle.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atangai/atang/internal/assistant/flow"
)

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

type record struct {
	engine     *flow.Engine
	lastActive time.Time
}

// Store owns every live widget session. Sessions are not persisted: a
// widget session is as transient as the browser tab it lives in.
type Store struct {
	logger  *slog.Logger
	backend flow.Streamer
	ttl     time.Duration

	mu       sync.Mutex
	sessions map[string]*record
	now      func() time.Time
}

// NewStore creates a session store backed by the given chat streamer.
func NewStore(logger *slog.Logger, backend flow.Streamer, ttl time.Duration) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		logger:   logger.With(slog.String("component", "session_store")),
		backend:  backend,
		ttl:      ttl,
		sessions: make(map[string]*record),
		now:      time.Now,
	}
}

// Create starts a fresh session and returns its id and engine.
func (s *Store) Create() (string, *flow.Engine) {
	engine := flow.NewEngine(s.logger, s.backend)
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = &record{engine: engine, lastActive: s.now()}
	s.mu.Unlock()

	s.logger.Debug("session created", slog.String("session_id", id))
	return id, engine
}

// Get resolves a session and marks it active.
func (s *Store) Get(id string) (*flow.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	rec.lastActive = s.now()
	return rec.engine, true
}

// Remove drops a session.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle longer than the TTL and returns how many.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var removed int
	for id, rec := range s.sessions {
		if rec.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info("idle sessions pruned", slog.Int("count", removed))
	}
	return removed
}

// RunSweeper sweeps on the given interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
