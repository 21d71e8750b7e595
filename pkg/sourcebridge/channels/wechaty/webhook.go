// Package wechaty – webhook.go normalizes inbound webhook payloads from the
// Wechaty gateway. Different gateway builds name the same fields differently
// (roomId vs room_id vs groupId, and so on); this is the single boundary
// where those variants are accepted. Everything past here is the canonical
// channels.IncomingMessage shape.
package wechaty

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels"
)

// webhookPayload accepts the field-name variants seen across Wechaty
// gateway builds. Only the first non-empty variant of each field is used.
type webhookPayload struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`

	RoomID  string `json:"roomId"`
	RoomID2 string `json:"room_id"`
	GroupID string `json:"groupId"`

	FromID   string `json:"fromId"`
	FromID2  string `json:"from_id"`
	TalkerID string `json:"talkerId"`

	FromName   string `json:"fromName"`
	FromName2  string `json:"from_name"`
	TalkerName string `json:"talkerName"`
	SenderName string `json:"senderName"`

	Text    string `json:"text"`
	Content string `json:"content"`
	Message string `json:"message"`

	Timestamp int64 `json:"timestamp"`
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// WebhookHandler returns the http.Handler for inbound gateway webhooks.
// Mounted by the API gateway at /webhook/wechaty.
func (w *Wechaty) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !w.checkToken(r.Header.Get("Authorization")) {
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}

		var payload webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.logger.Warn("wechaty: malformed webhook payload", "error", err)
			http.Error(rw, "malformed payload", http.StatusBadRequest)
			return
		}

		msg, err := w.normalize(payload)
		if err != nil {
			w.logger.Warn("wechaty: webhook payload rejected", "error", err)
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}

		w.emitMessage(msg)
		rw.WriteHeader(http.StatusNoContent)
	})
}

// normalize converts a webhook payload into the canonical message shape.
func (w *Wechaty) normalize(p webhookPayload) (*channels.IncomingMessage, error) {
	chatID := firstNonEmpty(p.RoomID, p.RoomID2, p.GroupID)
	from := firstNonEmpty(p.FromID, p.FromID2, p.TalkerID)
	text := firstNonEmpty(p.Text, p.Content, p.Message)

	isGroup := chatID != ""
	if chatID == "" {
		// Direct message: the sender is the chat.
		chatID = from
	}
	if chatID == "" {
		return nil, fmt.Errorf("payload has no room or sender identifier")
	}
	if text == "" {
		return nil, fmt.Errorf("payload has no text content")
	}

	ts := time.Now()
	if p.Timestamp > 0 {
		// Gateways emit either seconds or milliseconds since epoch.
		if p.Timestamp > 1e12 {
			ts = time.UnixMilli(p.Timestamp)
		} else {
			ts = time.Unix(p.Timestamp, 0)
		}
	}

	return &channels.IncomingMessage{
		ID:        firstNonEmpty(p.ID, p.MessageID),
		Channel:   "wechaty",
		From:      from,
		FromName:  firstNonEmpty(p.FromName, p.FromName2, p.TalkerName, p.SenderName, from),
		ChatID:    chatID,
		IsGroup:   isGroup,
		Content:   text,
		Timestamp: ts,
	}, nil
}
