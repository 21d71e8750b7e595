// Package gateway – handlers.go implements the HTTP endpoints.
package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/relay"
)

// errorResponse is the consistent error format.
type errorResponse struct {
	Error string `json:"error"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("writing response failed", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	g.writeJSON(w, status, errorResponse{Error: msg})
}

// handleHealth reports gateway, channel, and engine health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type channelHealth struct {
		Connected  bool  `json:"connected"`
		ErrorCount int   `json:"error_count"`
		LastMsgAge int64 `json:"last_message_age_s,omitempty"`
	}

	chans := make(map[string]channelHealth)
	for name, h := range g.service.ChannelHealth() {
		ch := channelHealth{Connected: h.Connected, ErrorCount: h.ErrorCount}
		if !h.LastMessageAt.IsZero() {
			ch.LastMsgAge = int64(time.Since(h.LastMessageAt).Seconds())
		}
		chans[name] = ch
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime_s": int64(time.Since(g.startedAt).Seconds()),
		"channels": chans,
		"sessions": g.store.Count(),
	})
}

// inquiryRequest is the POST /api/inquiry payload.
type inquiryRequest struct {
	Text string `json:"text"`
}

// inquiryResponse is the completed-inquiry result.
type inquiryResponse struct {
	SessionID  string          `json:"session_id"`
	Category   string          `json:"category"`
	Replies    []inquiry.Reply `json:"replies"`
	ReplyCount int             `json:"reply_count"`
	Summary    string          `json:"summary"`
	DurationMs int64           `json:"duration_ms"`
	IsTimeout  bool            `json:"is_timeout"`
}

// handleInquiry submits an inquiry and blocks until its summary is ready.
func (g *Gateway) handleInquiry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req inquiryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		g.writeError(w, "text is required", http.StatusBadRequest)
		return
	}

	result, err := g.service.ProcessInquiry(r.Context(), relay.Origin{}, req.Text)
	if err != nil {
		g.writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	g.writeJSON(w, http.StatusOK, inquiryResponse{
		SessionID:  result.SessionID,
		Category:   result.Category,
		Replies:    result.Replies,
		ReplyCount: result.ReplyCount,
		Summary:    result.Summary,
		DurationMs: result.Duration.Milliseconds(),
		IsTimeout:  result.IsTimeout,
	})
}

// handleSessions lists active and recently completed sessions.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": g.store.List(),
	})
}

// handleSessionByID returns one session's snapshot, with the result when
// completed.
func (g *Gateway) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id == "" {
		g.writeError(w, "session id is required", http.StatusBadRequest)
		return
	}

	s := g.store.Get(id)
	if s == nil {
		g.writeError(w, "session not found", http.StatusNotFound)
		return
	}

	resp := map[string]any{
		"session": s.Meta(),
	}
	if result := s.Result(); result != nil {
		resp["result"] = inquiryResponse{
			SessionID:  result.SessionID,
			Category:   result.Category,
			Replies:    result.Replies,
			ReplyCount: result.ReplyCount,
			Summary:    result.Summary,
			DurationMs: result.Duration.Milliseconds(),
			IsTimeout:  result.IsTimeout,
		}
	}
	g.writeJSON(w, http.StatusOK, resp)
}
