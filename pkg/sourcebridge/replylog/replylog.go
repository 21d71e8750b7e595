// Package replylog persists supplier replies to SQLite as they arrive. It
// is the secondary reply source the lifecycle controller consults when its
// in-memory list is empty at completion time. Writes are best-effort: a
// failed append is logged, never fatal, and session records themselves are
// never persisted here.
package replylog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// Log is a SQLite-backed append-only reply log.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the reply log at path.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening reply log: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS replies (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL,
			group_id    TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			text        TEXT NOT NULL,
			ts          TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_replies_session ON replies(session_id);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating replies table: %w", err)
	}

	return &Log{
		db:     db,
		logger: logger.With("component", "replylog"),
	}, nil
}

// Append records one reply for a session. Errors are returned for the
// caller to log; they must not abort reply handling.
func (l *Log) Append(sessionID string, reply inquiry.Reply) error {
	_, err := l.db.Exec(`
		INSERT INTO replies (session_id, group_id, sender_name, text, ts, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID,
		reply.GroupID,
		reply.SenderName,
		reply.Text,
		reply.Timestamp.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append reply for session %q: %w", sessionID, err)
	}
	return nil
}

// RecoverReplies returns all logged replies for a session in insertion
// order. Implements inquiry.ReplyRecoverer.
func (l *Log) RecoverReplies(sessionID string) ([]inquiry.Reply, error) {
	rows, err := l.db.Query(`
		SELECT group_id, sender_name, text, ts
		FROM replies WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("recover replies for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var replies []inquiry.Reply
	for rows.Next() {
		var (
			r  inquiry.Reply
			ts string
		)
		if err := rows.Scan(&r.GroupID, &r.SenderName, &r.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		replies = append(replies, r)
	}

	return replies, rows.Err()
}

// Purge deletes replies recorded before the cutoff. Returns the number of
// rows removed.
func (l *Log) Purge(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	res, err := l.db.Exec("DELETE FROM replies WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge replies: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		l.logger.Info("purged old replies", "rows", n)
	}
	return n, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
