// Package inquiry – controller.go implements the session lifecycle state
// machine: create → accumulate replies → complete (threshold or timeout) →
// deferred cleanup. Both completion triggers funnel through CompleteSession,
// which is idempotent; whichever trigger runs first does the real work and
// the other observes the cached result.
package inquiry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NoRepliesMessage is the fixed summary used when a session completes with
// zero replies. The summarizer is never invoked on an empty list.
const NoRepliesMessage = "No replies received within the time limit."

// Config holds the reply-aggregation engine tuning.
type Config struct {
	// ReplyThreshold is the reply count that triggers early completion.
	ReplyThreshold int `yaml:"reply_threshold"`

	// MaxWait is how long a session collects replies before timing out.
	MaxWait time.Duration `yaml:"max_wait"`

	// CleanupDelay is the retention window after completion before the
	// session record and its routes are purged.
	CleanupDelay time.Duration `yaml:"cleanup_delay"`

	// WaiterPollInterval is how often the completion waiter polls the store.
	WaiterPollInterval time.Duration `yaml:"waiter_poll_interval"`

	// WaiterSafetyNet is the waiter's independent timeout. Must exceed
	// MaxWait so the controller's own timeout path always fires first.
	WaiterSafetyNet time.Duration `yaml:"waiter_safety_net"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReplyThreshold:     3,
		MaxWait:            5 * time.Minute,
		CleanupDelay:       60 * time.Second,
		WaiterPollInterval: time.Second,
		WaiterSafetyNet:    6 * time.Minute,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.ReplyThreshold < 1 {
		return fmt.Errorf("reply_threshold must be >= 1, got %d", c.ReplyThreshold)
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("max_wait must be > 0, got %v", c.MaxWait)
	}
	if c.CleanupDelay < 0 {
		return fmt.Errorf("cleanup_delay must be >= 0, got %v", c.CleanupDelay)
	}
	if c.WaiterPollInterval <= 0 {
		return fmt.Errorf("waiter_poll_interval must be > 0, got %v", c.WaiterPollInterval)
	}
	if c.WaiterSafetyNet <= c.MaxWait {
		return fmt.Errorf("waiter_safety_net (%v) must exceed max_wait (%v)",
			c.WaiterSafetyNet, c.MaxWait)
	}
	return nil
}

// Summarizer synthesizes a prose summary from an ordered reply list.
// Implementations may fail; the controller falls back to FallbackSummary.
type Summarizer interface {
	Summarize(ctx context.Context, replies []Reply) (string, error)
}

// ReplyRecoverer is an optional secondary reply source consulted only when
// in-memory replies are empty at completion time.
type ReplyRecoverer interface {
	RecoverReplies(sessionID string) ([]Reply, error)
}

// Controller orchestrates the session lifecycle. It is the sole writer of
// the Store and the RouteTable.
type Controller struct {
	cfg        Config
	store      *Store
	routes     *RouteTable
	summarizer Summarizer
	recoverer  ReplyRecoverer
	logger     *slog.Logger
}

// NewController creates a lifecycle controller over the given store and
// routing table.
func NewController(cfg Config, store *Store, routes *RouteTable, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		store:  store,
		routes: routes,
		logger: logger.With("component", "inquiry"),
	}
}

// SetSummarizer configures the summary strategy. Optional; without one the
// deterministic fallback formatter is used.
func (c *Controller) SetSummarizer(s Summarizer) {
	c.summarizer = s
}

// SetRecoverer configures the reply-recovery collaborator. Optional.
func (c *Controller) SetRecoverer(r ReplyRecoverer) {
	c.recoverer = r
}

// Config returns the engine configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Store returns the session store (read access for listings).
func (c *Controller) Store() *Store {
	return c.store
}

// CreateSession builds a new active session from a resolved routing result,
// installs its routing-table entries, and arms the timeout timer. The caller
// must have validated routing.Success and owns the fan-out sends using the
// returned TargetGroups; no network I/O happens here.
//
// An empty sessionID generates one.
func (c *Controller) CreateSession(sessionID string, routing RoutingResult, originalMessage string) *Session {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s := &Session{
		ID:              sessionID,
		Category:        routing.Category,
		TargetGroups:    routing.TargetGroups,
		OriginalMessage: originalMessage,
		StartTime:       time.Now(),
		replies:         []Reply{},
		status:          StatusActive,
		timer:           NewTimer(),
		done:            make(chan struct{}),
	}

	c.store.Put(s)

	for _, g := range routing.TargetGroups {
		c.routes.Map(g.GroupID, sessionID)
	}

	s.timer.Start(c.cfg.MaxWait, func() {
		c.HandleTimeout(sessionID)
	})

	c.logger.Info("session created",
		"session_id", sessionID,
		"category", routing.Category,
		"groups", len(routing.TargetGroups),
		"max_wait", c.cfg.MaxWait,
	)

	return s
}

// HandleReply appends a reply to an active session and completes it when
// the threshold is reached. Replies for missing or already completed
// sessions are dropped silently; late replies are normal operation, not an
// error, since the summary has already been computed.
func (c *Controller) HandleReply(sessionID string, reply Reply) {
	s := c.store.Get(sessionID)
	if s == nil {
		c.logger.Debug("reply for unknown session dropped", "session_id", sessionID)
		return
	}

	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		c.logger.Debug("late reply dropped",
			"session_id", sessionID, "group_id", reply.GroupID)
		return
	}
	s.replies = append(s.replies, reply)
	count := len(s.replies)
	s.mu.Unlock()

	c.logger.Info("reply received",
		"session_id", sessionID,
		"group_id", reply.GroupID,
		"sender", reply.SenderName,
		"count", count,
		"threshold", c.cfg.ReplyThreshold,
	)

	if count >= c.cfg.ReplyThreshold {
		c.CompleteSession(sessionID, false)
	}
}

// HandleTimeout is fired by the per-session timer. The status guard inside
// CompleteSession is the authoritative race-breaker for a timer firing after
// a threshold-triggered completion.
func (c *Controller) HandleTimeout(sessionID string) {
	s := c.store.Get(sessionID)
	if s == nil || s.Status() != StatusActive {
		return
	}

	c.logger.Info("session timed out", "session_id", sessionID)
	c.CompleteSession(sessionID, true)
}

// CompleteSession is the single completion path. It transitions the session
// active→completed exactly once; concurrent triggers serialize on the
// session mutex, and any call after the first returns the cached result.
// Completion always succeeds and always produces a summary string.
func (c *Controller) CompleteSession(sessionID string, isTimeout bool) *Result {
	s := c.store.Get(sessionID)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.status != StatusActive {
		result := s.result
		s.mu.Unlock()
		return result
	}

	s.timer.Stop()

	s.status = StatusCompleted
	s.endTime = time.Now()
	s.duration = s.endTime.Sub(s.StartTime)
	s.isTimeout = isTimeout

	finalReplies := make([]Reply, len(s.replies))
	copy(finalReplies, s.replies)

	// In-memory replies win; the recovery source only backfills an empty
	// list (e.g. after a process hiccup with a log-backed store).
	if len(finalReplies) == 0 && c.recoverer != nil {
		recovered, err := c.recoverer.RecoverReplies(sessionID)
		if err != nil {
			c.logger.Warn("reply recovery failed, proceeding without",
				"session_id", sessionID, "error", err)
		} else if len(recovered) > 0 {
			c.logger.Info("replies recovered from secondary source",
				"session_id", sessionID, "count", len(recovered))
			finalReplies = recovered
		}
	}

	summary := c.summarize(sessionID, finalReplies)

	s.replies = finalReplies
	s.summary = summary
	s.result = &Result{
		SessionID:  s.ID,
		Category:   s.Category,
		Replies:    finalReplies,
		ReplyCount: len(finalReplies),
		Summary:    summary,
		Duration:   s.duration,
		IsTimeout:  isTimeout,
	}
	result := s.result
	close(s.done)
	s.mu.Unlock()

	c.logger.Info("session completed",
		"session_id", sessionID,
		"replies", result.ReplyCount,
		"is_timeout", isTimeout,
		"duration", result.Duration,
	)

	// Deferred cleanup: never immediate, so a polling waiter is guaranteed
	// to observe the completed state before the record vanishes.
	time.AfterFunc(c.cfg.CleanupDelay, func() {
		c.CleanupSession(sessionID)
	})

	return result
}

// summarize produces the summary for finalReplies, falling back to the
// deterministic formatter on any summarizer failure.
func (c *Controller) summarize(sessionID string, replies []Reply) string {
	if len(replies) == 0 {
		return NoRepliesMessage
	}
	if c.summarizer == nil {
		return FallbackSummary(replies)
	}

	summary, err := c.summarizer.Summarize(context.Background(), replies)
	if err != nil || strings.TrimSpace(summary) == "" {
		c.logger.Warn("summarizer failed, using fallback",
			"session_id", sessionID, "error", err)
		return FallbackSummary(replies)
	}
	return summary
}

// CleanupSession removes the session's routing-table entries and deletes it
// from the store. Idempotent: a second invocation finds nothing and does
// nothing.
func (c *Controller) CleanupSession(sessionID string) {
	s := c.store.Get(sessionID)
	if s == nil {
		return
	}

	for _, g := range s.TargetGroups {
		c.routes.UnmapSession(g.GroupID, sessionID)
	}
	c.store.Delete(sessionID)

	c.logger.Info("session cleaned up", "session_id", sessionID)
}

// FallbackSummary renders replies as "<sender>: <text>" joined with blank
// lines, prefixed with a reply count. Pure and side-effect-free so it is
// always safe to call mid-completion.
func FallbackSummary(replies []Reply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Received %d reply/replies from suppliers:", len(replies))
	for _, r := range replies {
		b.WriteString("\n\n")
		b.WriteString(r.SenderName)
		b.WriteString(": ")
		b.WriteString(r.Text)
	}
	return b.String()
}
