package whatsapp

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	t.Run("creates instance with defaults", func(t *testing.T) {
		w := New(DefaultConfig(), testLogger())

		if w == nil {
			t.Fatal("expected non-nil WhatsApp instance")
		}
		if w.Name() != "whatsapp" {
			t.Errorf("expected name 'whatsapp', got %s", w.Name())
		}
		if w.getState() != StateDisconnected {
			t.Errorf("expected initial state 'disconnected', got %s", w.getState())
		}
	})

	t.Run("uses default logger if nil", func(t *testing.T) {
		w := New(DefaultConfig(), nil)
		if w.logger == nil {
			t.Error("expected logger to be set")
		}
	})

	t.Run("applies reconnect backoff default", func(t *testing.T) {
		w := New(Config{DatabasePath: "./data/whatsapp.db"}, testLogger())
		if w.cfg.ReconnectBackoff != 5*time.Second {
			t.Errorf("expected default backoff 5s, got %v", w.cfg.ReconnectBackoff)
		}
	})
}

func TestStateManagement(t *testing.T) {
	w := New(DefaultConfig(), testLogger())

	states := []ConnectionState{
		StateConnecting, StateWaitingQR, StateConnected,
		StateReconnecting, StateDisconnected,
	}
	for _, s := range states {
		w.setState(s)
		if w.GetState() != s {
			t.Errorf("expected state %s, got %s", s, w.GetState())
		}
	}

	if w.IsConnected() {
		t.Error("expected not connected before Connect")
	}
}

func TestParseJID(t *testing.T) {
	t.Run("full user JID", func(t *testing.T) {
		jid, err := parseJID("5511999999999@s.whatsapp.net")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if jid.User != "5511999999999" || jid.Server != "s.whatsapp.net" {
			t.Errorf("unexpected JID: %s", jid)
		}
	})

	t.Run("group JID", func(t *testing.T) {
		jid, err := parseJID("123456789012345678@g.us")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if jid.Server != "g.us" {
			t.Errorf("expected group server, got %s", jid.Server)
		}
	})

	t.Run("bare phone number", func(t *testing.T) {
		jid, err := parseJID("+55 (11) 99999-9999")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if jid.User != "5511999999999" || jid.Server != "s.whatsapp.net" {
			t.Errorf("unexpected JID: %s", jid)
		}
	})

	t.Run("too-short number rejected", func(t *testing.T) {
		if _, err := parseJID("12345"); err == nil {
			t.Error("expected error for short number")
		}
	})

	t.Run("empty string rejected", func(t *testing.T) {
		if _, err := parseJID("  "); err == nil {
			t.Error("expected error for empty JID")
		}
	})
}

func TestExtractText(t *testing.T) {
	t.Run("conversation", func(t *testing.T) {
		msg := &waE2E.Message{Conversation: proto.String("hello")}
		if got := extractText(msg); got != "hello" {
			t.Errorf("expected 'hello', got %q", got)
		}
	})

	t.Run("extended text", func(t *testing.T) {
		msg := &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted reply")},
		}
		if got := extractText(msg); got != "quoted reply" {
			t.Errorf("expected 'quoted reply', got %q", got)
		}
	})

	t.Run("image caption", func(t *testing.T) {
		msg := &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{Caption: proto.String("the basin model")},
		}
		if got := extractText(msg); got != "the basin model" {
			t.Errorf("expected caption, got %q", got)
		}
	})

	t.Run("nil message", func(t *testing.T) {
		if got := extractText(nil); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})

	t.Run("no text content", func(t *testing.T) {
		if got := extractText(&waE2E.Message{}); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})
}

func TestBuildTextMessage(t *testing.T) {
	msg := buildTextMessage("hello suppliers")
	if msg.GetConversation() != "hello suppliers" {
		t.Errorf("expected conversation set, got %q", msg.GetConversation())
	}
}

func TestEmitMessage(t *testing.T) {
	t.Run("delivers to consumer", func(t *testing.T) {
		w := New(DefaultConfig(), testLogger())
		w.emitMessage(&channels.IncomingMessage{ChatID: "chat-1", Content: "hi"})

		select {
		case msg := <-w.Receive():
			if msg.ChatID != "chat-1" {
				t.Errorf("unexpected message: %+v", msg)
			}
		default:
			t.Fatal("expected buffered message")
		}
	})

	t.Run("drops when buffer is full", func(t *testing.T) {
		w := New(DefaultConfig(), testLogger())
		for i := 0; i < 300; i++ {
			w.emitMessage(&channels.IncomingMessage{ChatID: "chat-1"})
		}
		if len(w.messages) != 256 {
			t.Errorf("expected buffer capped at 256, got %d", len(w.messages))
		}
	})

	t.Run("no send after disconnect", func(t *testing.T) {
		w := New(DefaultConfig(), testLogger())
		if err := w.Disconnect(); err != nil {
			t.Fatalf("disconnect: %v", err)
		}
		// Must not panic on the closed channel.
		w.emitMessage(&channels.IncomingMessage{ChatID: "chat-1"})
	})
}

func TestHealth(t *testing.T) {
	w := New(DefaultConfig(), testLogger())
	w.setState(StateWaitingQR)

	h := w.Health()
	if h.Connected {
		t.Error("expected not connected")
	}
	if h.Details["state"] != string(StateWaitingQR) {
		t.Errorf("expected state in details, got %v", h.Details["state"])
	}
}
