// Package inquiry – store.go implements the in-memory session store. The
// store is the authoritative map of session ID to session record; sessions
// are purged only by the Controller's deferred cleanup, never eagerly, so a
// polling caller always has a retention window to observe the final state.
package inquiry

import (
	"log/slog"
	"sync"
)

// Store holds active and recently completed sessions by ID.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "store"),
	}
}

// Put registers a session. A duplicate ID is a caller error; the previous
// record is replaced and the collision logged.
func (st *Store) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.sessions[s.ID]; exists {
		st.logger.Warn("session id collision, replacing record", "session_id", s.ID)
	}
	st.sessions[s.ID] = s
}

// Get returns the session by ID, or nil if absent.
func (st *Store) Get(sessionID string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[sessionID]
}

// Delete removes a session by ID. Idempotent.
func (st *Store) Delete(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, sessionID)
}

// Count returns the number of stored sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// List returns metadata snapshots for all stored sessions.
func (st *Store) List() []Meta {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Meta, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.Meta())
	}
	return out
}
