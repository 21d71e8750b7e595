package replylog

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "replies.db"), testLogger())
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLog(t *testing.T) {
	t.Run("append and recover preserve order", func(t *testing.T) {
		l := openTestLog(t)
		now := time.Now()

		replies := []inquiry.Reply{
			{GroupID: "g1", SenderName: "Supplier A", Text: "yes", Timestamp: now},
			{GroupID: "g2", SenderName: "Supplier B", Text: "in stock", Timestamp: now.Add(time.Second)},
			{GroupID: "g1", SenderName: "Supplier A", Text: "60cm only", Timestamp: now.Add(2 * time.Second)},
		}
		for _, r := range replies {
			if err := l.Append("sess-1", r); err != nil {
				t.Fatalf("append: %v", err)
			}
		}

		got, err := l.RecoverReplies("sess-1")
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 replies, got %d", len(got))
		}
		for i, r := range got {
			if r.Text != replies[i].Text || r.SenderName != replies[i].SenderName {
				t.Errorf("reply %d mismatch: got %+v want %+v", i, r, replies[i])
			}
		}
		if !got[0].Timestamp.Equal(now.Truncate(0)) {
			t.Errorf("timestamp not round-tripped: got %v want %v", got[0].Timestamp, now)
		}
	})

	t.Run("recover is scoped to session", func(t *testing.T) {
		l := openTestLog(t)
		l.Append("sess-1", inquiry.Reply{GroupID: "g1", SenderName: "A", Text: "one"})
		l.Append("sess-2", inquiry.Reply{GroupID: "g1", SenderName: "A", Text: "two"})

		got, err := l.RecoverReplies("sess-1")
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		if len(got) != 1 || got[0].Text != "one" {
			t.Errorf("expected only sess-1 replies, got %+v", got)
		}
	})

	t.Run("recover unknown session returns empty", func(t *testing.T) {
		l := openTestLog(t)
		got, err := l.RecoverReplies("missing")
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no replies, got %d", len(got))
		}
	})

	t.Run("purge removes old rows only", func(t *testing.T) {
		l := openTestLog(t)
		l.Append("sess-1", inquiry.Reply{GroupID: "g1", SenderName: "A", Text: "fresh"})

		// Nothing is older than an hour yet.
		n, err := l.Purge(time.Hour)
		if err != nil {
			t.Fatalf("purge: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 purged, got %d", n)
		}

		// A zero retention purges everything recorded so far.
		time.Sleep(5 * time.Millisecond)
		n, err = l.Purge(0)
		if err != nil {
			t.Fatalf("purge: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 purged, got %d", n)
		}

		got, _ := l.RecoverReplies("sess-1")
		if len(got) != 0 {
			t.Errorf("expected log emptied, got %d replies", len(got))
		}
	})

	t.Run("implements the recoverer interface", func(t *testing.T) {
		var _ inquiry.ReplyRecoverer = openTestLog(t)
	})
}
