// Package inquiry – session.go defines the tracked inquiry session and the
// value types exchanged with collaborators (router, adapters, summarizer).
package inquiry

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a session. There are only two states:
// a session is either collecting replies or done.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// TargetGroup identifies one supplier group chat an inquiry fans out to.
type TargetGroup struct {
	GroupID     string `yaml:"group_id" json:"group_id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
}

// RoutingResult is the outcome of categorizing an inquiry. Produced by the
// category router, consumed (never built) by the engine.
type RoutingResult struct {
	Success      bool
	Category     string
	TargetGroups []TargetGroup
	Err          string
}

// Reply is one normalized supplier reply. Replies are appended in arrival
// order as observed by this process.
type Reply struct {
	GroupID    string    `json:"group_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result is the outcome of a completed session.
type Result struct {
	SessionID  string        `json:"session_id"`
	Category   string        `json:"category"`
	Replies    []Reply       `json:"replies"`
	ReplyCount int           `json:"reply_count"`
	Summary    string        `json:"summary"`
	Duration   time.Duration `json:"duration_ms"`
	IsTimeout  bool          `json:"is_timeout"`
}

// Session is a tracked inquiry: one inbound sales message fanned out to N
// supplier groups, collecting replies until threshold or timeout.
//
// All mutation happens inside the Controller under the session mutex; other
// goroutines (waiter, HTTP handlers) read through the accessor methods.
type Session struct {
	// ID is the opaque correlation key, stable for the session's lifetime.
	ID string

	// Category is the router's classification, fixed at creation.
	Category string

	// TargetGroups defines the fan-out and the routing-table entries.
	TargetGroups []TargetGroup

	// OriginalMessage is the inbound text that triggered the session.
	OriginalMessage string

	// StartTime is when the session was created.
	StartTime time.Time

	replies   []Reply
	status    Status
	endTime   time.Time
	duration  time.Duration
	isTimeout bool
	summary   string
	result    *Result

	// timer is owned exclusively by this session for its active lifetime.
	timer *Timer

	// done is closed exactly once, when the session completes.
	done chan struct{}

	mu sync.RWMutex
}

// Status returns the current lifecycle state. Thread-safe.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Replies returns a copy of the accumulated replies. Thread-safe.
func (s *Session) Replies() []Reply {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reply, len(s.replies))
	copy(out, s.replies)
	return out
}

// ReplyCount returns the number of accumulated replies. Thread-safe.
func (s *Session) ReplyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.replies)
}

// Summary returns the synthesized summary, or "" while active. Thread-safe.
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// IsTimeout reports whether completion was triggered by the timer.
func (s *Session) IsTimeout() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isTimeout
}

// Result returns the completion result, or nil while active. Thread-safe.
func (s *Session) Result() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Done returns a channel closed when the session completes. Callers may
// select on it instead of polling; the store remains the source of truth.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Meta is a read-only snapshot of a session for listing and sweeps.
type Meta struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Status     Status    `json:"status"`
	ReplyCount int       `json:"reply_count"`
	GroupCount int       `json:"group_count"`
	StartTime  time.Time `json:"start_time"`
	IsTimeout  bool      `json:"is_timeout"`
}

// Meta returns a snapshot of the session. Thread-safe.
func (s *Session) Meta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Meta{
		ID:         s.ID,
		Category:   s.Category,
		Status:     s.status,
		ReplyCount: len(s.replies),
		GroupCount: len(s.TargetGroups),
		StartTime:  s.StartTime,
		IsTimeout:  s.isTimeout,
	}
}
