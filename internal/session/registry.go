package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/adapter/chesspresenter"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/game"
)

var (
	ErrSessionNotFound = errors.New("chess session not found")
	ErrSessionExists   = errors.New("chess session already exists")
)

const (
	defaultIdleTTL   = time.Hour
	minSweepInterval = 10 * time.Second
)

// Session is one browser tab's game.
type Session struct {
	ID         string
	Controller *game.Controller
	Selector   *chesspresenter.Selector
	CreatedAt  time.Time

	lastSeen atomic.Int64
}

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Factory builds the controller for a new session.
type Factory func(id string, side domain.Side, level domain.Difficulty) (*game.Controller, error)

// Registry holds live sessions in memory and closes the ones left idle.
type Registry struct {
	factory Factory
	idleTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(factory Factory, idleTTL time.Duration, logger *zap.Logger) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factory:  factory,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// Create starts a session. An empty id gets a fresh UUID.
func (r *Registry) Create(id string, side domain.Side, level domain.Difficulty) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, ErrSessionExists
	}
	// reserve the id so a concurrent Create cannot build a second controller
	r.sessions[id] = nil
	r.mu.Unlock()

	ctrl, err := r.factory(id, side, level)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		delete(r.sessions, id)
		return nil, err
	}
	s := &Session{ID: id, Controller: ctrl, Selector: &chesspresenter.Selector{}, CreatedAt: r.now()}
	s.touch(s.CreatedAt)
	r.sessions[id] = s
	r.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("human_side", side.String()),
		zap.String("difficulty", level.String()))
	return s, nil
}

// Get returns a live session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()
	if s == nil {
		return nil, ErrSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s := r.sessions[id]
	if s != nil {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if s == nil {
		return false
	}
	s.Controller.Close()
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s != nil {
			n++
		}
	}
	return n
}

// Evict closes sessions idle for longer than the TTL and returns how many were removed.
func (r *Registry) Evict() int {
	cutoff := r.now().Add(-r.idleTTL)
	var stale []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s != nil && s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Controller.Close()
		r.logger.Info("session evicted", zap.String("session_id", s.ID), zap.Time("last_seen", s.LastSeen()))
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := max(r.idleTTL/4, minSweepInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict()
		}
	}
}

// Close shuts down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s != nil {
			all = append(all, s)
		}
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Controller.Close()
	}
}
