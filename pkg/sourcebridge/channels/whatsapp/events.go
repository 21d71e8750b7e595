// Package whatsapp – events.go processes incoming whatsmeow events and
// converts them into unified SourceBridge IncomingMessage values.
package whatsapp

import (
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// ConnectionState represents the current connection state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateWaitingQR    ConnectionState = "waiting_qr"
)

// handleEvent is the main whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.setState(StateConnected)
		w.connected.Store(true)
		w.errorCount.Store(0)
		w.reconnectAttempts.Store(0)
		w.logger.Info("whatsapp: connected", "jid", w.getClientJID())

	case *events.Disconnected:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Warn("whatsapp: disconnected by server")
		if w.ctx.Err() == nil {
			go w.attemptReconnect()
		}

	case *events.LoggedOut:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("whatsapp: logged out, re-pairing required",
			"reason", evt.Reason)

	case *events.StreamReplaced:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("whatsapp: stream replaced by another client")

	case *events.PairSuccess:
		w.logger.Info("whatsapp: device paired",
			"jid", evt.ID, "platform", evt.Platform)

	case *events.KeepAliveTimeout:
		w.logger.Warn("whatsapp: keepalive timeout",
			"error_count", evt.ErrorCount)

	case *events.KeepAliveRestored:
		w.logger.Info("whatsapp: keepalive restored")
	}
}

// handleMessageEvt converts an incoming WhatsApp message event.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	w.lastMsg.Store(time.Now())

	if evt.Info.IsFromMe {
		return
	}
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	isGroup := evt.Info.IsGroup
	if isGroup && !w.cfg.RespondToGroups {
		return
	}
	if !isGroup && !w.cfg.RespondToDMs {
		return
	}

	content := extractText(evt.Message)
	if content == "" {
		return
	}

	w.emitMessage(&channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      evt.Info.Sender.String(),
		FromName:  evt.Info.PushName,
		ChatID:    evt.Info.Chat.String(),
		IsGroup:   isGroup,
		Content:   content,
		Timestamp: evt.Info.Timestamp,
		Metadata: map[string]any{
			"push_name": evt.Info.PushName,
		},
	})
}

// extractText pulls the text content from a WhatsApp message, if any.
func extractText(waMsg *waE2E.Message) string {
	if waMsg == nil {
		return ""
	}
	if waMsg.Conversation != nil {
		return waMsg.GetConversation()
	}
	if ext := waMsg.ExtendedTextMessage; ext != nil {
		return ext.GetText()
	}
	if img := waMsg.ImageMessage; img != nil && img.GetCaption() != "" {
		return img.GetCaption()
	}
	return ""
}

// buildTextMessage builds an outgoing text message.
func buildTextMessage(text string) *waE2E.Message {
	return &waE2E.Message{
		Conversation: proto.String(text),
	}
}

// parseJID converts a string JID to types.JID. Accepts "5511999999999",
// "5511999999999@s.whatsapp.net", or group IDs like "123456789@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	// Bare phone number: strip non-digits and add the default server.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}

	return types.NewJID(digits, types.DefaultUserServer), nil
}
