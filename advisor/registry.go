package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry maps session ids to orchestrators. It is the only cross-session
// shared mutable state; idle sessions are evicted by TTL and the oldest
// sessions by capacity, so abandoned sessions cannot accumulate forever.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	factory     func(id string) *Orchestrator
	ttl         time.Duration
	maxSessions int
	logger      *slog.Logger
	gauge       func(active int)
}

type sessionEntry struct {
	orchestrator *Orchestrator
	lastAccess   time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSessionTTL sets the idle eviction timeout.
func WithSessionTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = ttl }
}

// WithMaxSessions caps the number of live sessions; creating beyond the cap
// evicts the least recently used session.
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) { r.maxSessions = n }
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithSessionGauge registers a callback invoked with the live session count
// after every change.
func WithSessionGauge(gauge func(active int)) RegistryOption {
	return func(r *Registry) { r.gauge = gauge }
}

// NewRegistry creates a registry. The factory builds an orchestrator for a
// freshly assigned session id.
func NewRegistry(factory func(id string) *Orchestrator, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:    make(map[string]*sessionEntry),
		factory:     factory,
		ttl:         30 * time.Minute,
		maxSessions: 1000,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a new session and returns its orchestrator.
func (r *Registry) Create() *Orchestrator {
	id := uuid.New().String()
	orchestrator := r.factory(id)

	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.evictOldestLocked()
	}
	r.sessions[id] = &sessionEntry{orchestrator: orchestrator, lastAccess: time.Now()}
	active := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("Session created", "session_id", id, "active_sessions", active)
	r.updateGauge(active)
	return orchestrator
}

// Adopt registers an externally built orchestrator, used when restoring a
// persisted session.
func (r *Registry) Adopt(orchestrator *Orchestrator) {
	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.evictOldestLocked()
	}
	r.sessions[orchestrator.ID()] = &sessionEntry{orchestrator: orchestrator, lastAccess: time.Now()}
	active := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("Session adopted", "session_id", orchestrator.ID(), "active_sessions", active)
	r.updateGauge(active)
}

// Get returns the orchestrator for id, refreshing its idle timer.
func (r *Registry) Get(id string) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
	}
	entry.lastAccess = time.Now()
	return entry.orchestrator, nil
}

// Close removes a session. Returns false for unknown ids.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.logger.Info("Session closed", "session_id", id, "active_sessions", active)
		r.updateGauge(active)
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run evicts idle sessions until the context is cancelled. Intended to run
// in its own goroutine.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	var evicted []string
	for id, entry := range r.sessions {
		if entry.lastAccess.Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if len(evicted) > 0 {
		r.logger.Info("Evicted idle sessions", "count", len(evicted), "active_sessions", active)
		r.updateGauge(active)
	}
}

// evictOldestLocked drops the least recently used session. Caller holds mu.
func (r *Registry) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range r.sessions {
		if oldestID == "" || entry.lastAccess.Before(oldest) {
			oldestID = id
			oldest = entry.lastAccess
		}
	}
	if oldestID != "" {
		delete(r.sessions, oldestID)
		r.logger.Warn("Evicted session at capacity", "session_id", oldestID)
	}
}

func (r *Registry) updateGauge(active int) {
	if r.gauge != nil {
		r.gauge(active)
	}
}
