package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubService answers ProcessInquiry with a canned result or error.
type stubService struct {
	result  *inquiry.Result
	err     error
	gotText string
	health  map[string]channels.HealthStatus
}

func (s *stubService) ProcessInquiry(_ context.Context, _ relay.Origin, text string) (*inquiry.Result, error) {
	s.gotText = text
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubService) ChannelHealth() map[string]channels.HealthStatus {
	return s.health
}

func newTestGateway(cfg Config, svc *stubService) (*Gateway, *inquiry.Store) {
	store := inquiry.NewStore(testLogger())
	if svc.health == nil {
		svc.health = map[string]channels.HealthStatus{}
	}
	g := New(cfg, svc, store, testLogger())
	g.startedAt = time.Now()
	return g, store
}

func TestHandleInquiry(t *testing.T) {
	t.Run("returns completed result", func(t *testing.T) {
		svc := &stubService{result: &inquiry.Result{
			SessionID:  "sess-1",
			Category:   "basin",
			Replies:    []inquiry.Reply{{SenderName: "A", Text: "yes"}},
			ReplyCount: 1,
			Summary:    "A: yes",
			Duration:   1500 * time.Millisecond,
		}}
		g, _ := newTestGateway(DefaultConfig(), svc)

		req := httptest.NewRequest(http.MethodPost, "/api/inquiry",
			strings.NewReader(`{"text":"need basins"}`))
		rec := httptest.NewRecorder()
		g.handleInquiry(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if svc.gotText != "need basins" {
			t.Errorf("expected text forwarded, got %q", svc.gotText)
		}

		var resp inquiryResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.SessionID != "sess-1" || resp.Summary != "A: yes" {
			t.Errorf("unexpected response: %+v", resp)
		}
		if resp.DurationMs != 1500 {
			t.Errorf("expected duration 1500ms, got %d", resp.DurationMs)
		}
	})

	t.Run("rejects non-post", func(t *testing.T) {
		g, _ := newTestGateway(DefaultConfig(), &stubService{})
		rec := httptest.NewRecorder()
		g.handleInquiry(rec, httptest.NewRequest(http.MethodGet, "/api/inquiry", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		g, _ := newTestGateway(DefaultConfig(), &stubService{})
		rec := httptest.NewRecorder()
		g.handleInquiry(rec, httptest.NewRequest(http.MethodPost, "/api/inquiry",
			strings.NewReader("{not json")))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("rejects blank text", func(t *testing.T) {
		g, _ := newTestGateway(DefaultConfig(), &stubService{})
		rec := httptest.NewRecorder()
		g.handleInquiry(rec, httptest.NewRequest(http.MethodPost, "/api/inquiry",
			strings.NewReader(`{"text":"  "}`)))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("service failure yields 422", func(t *testing.T) {
		g, _ := newTestGateway(DefaultConfig(), &stubService{err: errors.New("routing failed")})
		rec := httptest.NewRecorder()
		g.handleInquiry(rec, httptest.NewRequest(http.MethodPost, "/api/inquiry",
			strings.NewReader(`{"text":"steel rebar"}`)))

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected 422, got %d", rec.Code)
		}
		var resp errorResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if !strings.Contains(resp.Error, "routing failed") {
			t.Errorf("expected routing error, got %q", resp.Error)
		}
	})
}

func TestHandleHealth(t *testing.T) {
	svc := &stubService{health: map[string]channels.HealthStatus{
		"whatsapp": {Connected: true},
		"wechaty":  {Connected: false, ErrorCount: 3},
	}}
	g, store := newTestGateway(DefaultConfig(), svc)
	store.Put(&inquiry.Session{ID: "sess-1"})

	rec := httptest.NewRecorder()
	g.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Channels map[string]struct {
			Connected  bool `json:"connected"`
			ErrorCount int  `json:"error_count"`
		} `json:"channels"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "ok" || resp.Sessions != 1 {
		t.Errorf("unexpected health: %+v", resp)
	}
	if !resp.Channels["whatsapp"].Connected || resp.Channels["wechaty"].ErrorCount != 3 {
		t.Errorf("unexpected channel health: %+v", resp.Channels)
	}
}

func TestHandleSessions(t *testing.T) {
	t.Run("lists sessions", func(t *testing.T) {
		g, store := newTestGateway(DefaultConfig(), &stubService{})
		store.Put(&inquiry.Session{ID: "sess-1", Category: "basin"})
		store.Put(&inquiry.Session{ID: "sess-2", Category: "tile"})

		rec := httptest.NewRecorder()
		g.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

		var resp struct {
			Sessions []inquiry.Meta `json:"sessions"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if len(resp.Sessions) != 2 {
			t.Errorf("expected 2 sessions, got %d", len(resp.Sessions))
		}
	})

	t.Run("session by id", func(t *testing.T) {
		g, store := newTestGateway(DefaultConfig(), &stubService{})
		store.Put(&inquiry.Session{ID: "sess-1", Category: "basin"})

		rec := httptest.NewRecorder()
		g.handleSessionByID(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Session inquiry.Meta `json:"session"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Session.ID != "sess-1" || resp.Session.Category != "basin" {
			t.Errorf("unexpected session: %+v", resp.Session)
		}
	})

	t.Run("missing session is 404", func(t *testing.T) {
		g, _ := newTestGateway(DefaultConfig(), &stubService{})

		rec := httptest.NewRecorder()
		g.handleSessionByID(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("no token configured passes through", func(t *testing.T) {
		g, _ := newTestGateway(DefaultConfig(), &stubService{})
		rec := httptest.NewRecorder()
		g.authMiddleware(okHandler).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("health bypasses auth", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AuthToken = "secret"
		g, _ := newTestGateway(cfg, &stubService{})

		rec := httptest.NewRecorder()
		g.authMiddleware(okHandler).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 without auth on /health, got %d", rec.Code)
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AuthToken = "secret"
		g, _ := newTestGateway(cfg, &stubService{})

		rec := httptest.NewRecorder()
		g.authMiddleware(okHandler).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AuthToken = "secret"
		g, _ := newTestGateway(cfg, &stubService{})

		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		g.authMiddleware(okHandler).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("correct token accepted", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AuthToken = "secret"
		g, _ := newTestGateway(cfg, &stubService{})

		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		g.authMiddleware(okHandler).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestCompareTokens(t *testing.T) {
	if !compareTokens("abc", "abc") {
		t.Error("expected equal tokens to match")
	}
	if compareTokens("abc", "abd") {
		t.Error("expected different tokens to mismatch")
	}
	if compareTokens("abc", "abcdef") {
		t.Error("expected different-length tokens to mismatch")
	}
}
