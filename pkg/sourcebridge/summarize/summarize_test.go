package summarize

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testReplies() []inquiry.Reply {
	return []inquiry.Reply{
		{GroupID: "g1", SenderName: "Supplier A", Text: "yes, 200 in stock"},
		{GroupID: "g2", SenderName: "Supplier B", Text: "can do by Friday"},
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Run("no api key selects concat", func(t *testing.T) {
		s := NewFromConfig(Config{}, testLogger())
		if _, ok := s.(ConcatSummarizer); !ok {
			t.Errorf("expected ConcatSummarizer, got %T", s)
		}
	})

	t.Run("api key selects llm", func(t *testing.T) {
		s := NewFromConfig(Config{APIKey: "sk-test"}, testLogger())
		if _, ok := s.(*LLMSummarizer); !ok {
			t.Errorf("expected LLMSummarizer, got %T", s)
		}
	})
}

func TestConcatSummarizer(t *testing.T) {
	s := ConcatSummarizer{}
	got, err := s.Summarize(context.Background(), testReplies())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Received 2 reply/replies from suppliers:\n\nSupplier A: yes, 200 in stock\n\nSupplier B: can do by Friday"
	if got != want {
		t.Errorf("unexpected summary:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestLLMSummarizer(t *testing.T) {
	t.Run("successful call", func(t *testing.T) {
		var gotAuth string
		var gotReq chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"choices":[{"message":{"content":"Both suppliers have stock."}}]}`)
		}))
		defer srv.Close()

		l := NewLLMSummarizer(Config{
			BaseURL: srv.URL,
			APIKey:  "sk-test",
			Model:   "gpt-4o-mini",
		}, testLogger())

		got, err := l.Summarize(context.Background(), testReplies())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "Both suppliers have stock." {
			t.Errorf("unexpected summary: %q", got)
		}
		if gotAuth != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %q", gotAuth)
		}
		if gotReq.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model: %q", gotReq.Model)
		}
		if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", gotReq.Messages)
		}
		if !strings.Contains(gotReq.Messages[1].Content, "Supplier A: yes, 200 in stock") {
			t.Errorf("expected replies in user message, got %q", gotReq.Messages[1].Content)
		}
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
		}))
		defer srv.Close()

		l := NewLLMSummarizer(Config{BaseURL: srv.URL, APIKey: "sk-test"}, testLogger())
		if _, err := l.Summarize(context.Background(), testReplies()); err == nil {
			t.Error("expected error on 429")
		}
	})

	t.Run("api error payload is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, `{"error":{"message":"invalid model","type":"invalid_request_error"}}`)
		}))
		defer srv.Close()

		l := NewLLMSummarizer(Config{BaseURL: srv.URL, APIKey: "sk-test"}, testLogger())
		_, err := l.Summarize(context.Background(), testReplies())
		if err == nil || !strings.Contains(err.Error(), "invalid model") {
			t.Errorf("expected api error, got %v", err)
		}
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, `{"choices":[]}`)
		}))
		defer srv.Close()

		l := NewLLMSummarizer(Config{BaseURL: srv.URL, APIKey: "sk-test"}, testLogger())
		if _, err := l.Summarize(context.Background(), testReplies()); err == nil {
			t.Error("expected error on empty choices")
		}
	})

	t.Run("blank content is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, `{"choices":[{"message":{"content":"   "}}]}`)
		}))
		defer srv.Close()

		l := NewLLMSummarizer(Config{BaseURL: srv.URL, APIKey: "sk-test"}, testLogger())
		if _, err := l.Summarize(context.Background(), testReplies()); err == nil {
			t.Error("expected error on blank content")
		}
	})

	t.Run("missing api key is an error", func(t *testing.T) {
		l := &LLMSummarizer{httpClient: http.DefaultClient, logger: testLogger()}
		if _, err := l.Summarize(context.Background(), testReplies()); err == nil {
			t.Error("expected error without api key")
		}
	})

	t.Run("language is appended to system prompt", func(t *testing.T) {
		l := NewLLMSummarizer(Config{APIKey: "sk-test", Language: "zh-CN"}, testLogger())
		if !strings.Contains(l.systemPrompt(), "zh-CN") {
			t.Errorf("expected language in prompt, got %q", l.systemPrompt())
		}
	})
}
