// Package inquiry – waiter.go lets an inbound-request handler block until a
// session completes. The store is polled at a fixed interval; an independent
// safety-net timeout (strictly longer than the engine's max wait) guarantees
// the caller is never blocked forever even if the controller's own timeout
// path were to fail silently.
package inquiry

import (
	"context"
	"time"
)

// WaitResult is what a completion waiter resolves with.
type WaitResult struct {
	SessionID string  `json:"session_id"`
	Replies   []Reply `json:"replies"`
	Summary   string  `json:"summary"`
}

// WaitForCompletion blocks until the session reaches completed status, the
// session vanishes, the safety net fires, or ctx is cancelled.
//
// Returns (nil, nil) if the session vanished without completing, a case
// the deferred-cleanup ordering makes unreachable in normal operation. On safety-net firing the session is force-completed as a
// timeout and its result returned.
func (c *Controller) WaitForCompletion(ctx context.Context, sessionID string) (*WaitResult, error) {
	ticker := time.NewTicker(c.cfg.WaiterPollInterval)
	defer ticker.Stop()

	safetyNet := time.NewTimer(c.cfg.WaiterSafetyNet)
	defer safetyNet.Stop()

	for {
		if res := c.pollCompleted(sessionID); res != nil {
			return res, nil
		}
		if c.store.Get(sessionID) == nil {
			return nil, nil
		}

		select {
		case <-ticker.C:

		case <-safetyNet.C:
			c.logger.Warn("waiter safety net fired, forcing completion",
				"session_id", sessionID)
			if result := c.CompleteSession(sessionID, true); result != nil {
				return &WaitResult{
					SessionID: result.SessionID,
					Replies:   result.Replies,
					Summary:   result.Summary,
				}, nil
			}
			return nil, nil

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// pollCompleted returns the wait result if the session is completed.
func (c *Controller) pollCompleted(sessionID string) *WaitResult {
	s := c.store.Get(sessionID)
	if s == nil {
		return nil
	}
	result := s.Result()
	if result == nil {
		return nil
	}
	return &WaitResult{
		SessionID: result.SessionID,
		Replies:   result.Replies,
		Summary:   result.Summary,
	}
}
