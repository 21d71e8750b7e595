// Package inquiry – routes.go implements the group→session routing table.
// External adapters resolve an incoming group message to its active session
// through this table; the Controller is the only writer.
package inquiry

import (
	"log/slog"
	"sync"
)

// RouteTable maps external chat-group identifiers to active session IDs.
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]string
	logger *slog.Logger
}

// NewRouteTable creates an empty routing table.
func NewRouteTable(logger *slog.Logger) *RouteTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteTable{
		routes: make(map[string]string),
		logger: logger.With("component", "routes"),
	}
}

// Map installs (or overwrites) a groupID→sessionID entry. Overwriting an
// entry that points at a different session indicates a configuration error
// (two active sessions fanning out to the same group); last writer wins but
// the collision is logged so it is never a silent misroute.
func (rt *RouteTable) Map(groupID, sessionID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if prev, exists := rt.routes[groupID]; exists && prev != sessionID {
		rt.logger.Warn("group already mapped to another session, overwriting",
			"group_id", groupID,
			"previous_session", prev,
			"new_session", sessionID,
		)
	}
	rt.routes[groupID] = sessionID
}

// Resolve returns the session ID mapped to groupID, if any.
func (rt *RouteTable) Resolve(groupID string) (string, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	sessionID, ok := rt.routes[groupID]
	return sessionID, ok
}

// Unmap removes the entry for groupID unconditionally.
func (rt *RouteTable) Unmap(groupID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.routes, groupID)
}

// UnmapSession removes the entry for groupID only if it still points at
// sessionID. Used by cleanup so a stale session never tears down a route
// that a newer session has since claimed.
func (rt *RouteTable) UnmapSession(groupID, sessionID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.routes[groupID] == sessionID {
		delete(rt.routes, groupID)
	}
}

// Len returns the number of installed routes.
func (rt *RouteTable) Len() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.routes)
}
