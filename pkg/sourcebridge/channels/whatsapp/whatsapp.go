// Package whatsapp implements the WhatsApp channel for SourceBridge using
// whatsmeow, a native Go WhatsApp Web API library. No Node.js bridge.
//
// Features:
//   - QR code login with persistent session (SQLite)
//   - Send/receive text in group chats and DMs
//   - Automatic reconnection with backoff
//   - Connection state management
//
// Supplier groups live on this channel; the relay resolves each incoming
// group message to its inquiry session through the routing table.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the device store.
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// Enabled turns the channel on.
	Enabled bool `yaml:"enabled"`

	// DatabasePath is the SQLite file for the whatsmeow device store.
	DatabasePath string `yaml:"database_path"`

	// RespondToGroups enables processing messages from group chats.
	RespondToGroups bool `yaml:"respond_to_groups"`

	// RespondToDMs enables processing direct messages.
	RespondToDMs bool `yaml:"respond_to_dms"`

	// ReconnectBackoff is the initial backoff duration for reconnection.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// MaxReconnectAttempts caps reconnection tries (0 = unlimited).
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath:         "./data/whatsapp.db",
		RespondToGroups:      true,
		RespondToDMs:         true,
		ReconnectBackoff:     5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// WhatsApp implements the channels.Channel interface via whatsmeow.
type WhatsApp struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	// messages is the channel for incoming messages.
	messages chan *channels.IncomingMessage

	connected atomic.Bool
	state     atomic.Value // ConnectionState
	lastMsg   atomic.Value // time.Time

	errorCount        atomic.Int64
	reconnectAttempts atomic.Int32
	reconnectGuard    atomic.Bool

	// messagesClosed prevents sending on a closed channel after Disconnect.
	messagesClosed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new WhatsApp channel instance.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}

	w := &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
	w.setState(StateDisconnected)
	return w
}

// ---------- State Management ----------

func (w *WhatsApp) getState() ConnectionState {
	if v := w.state.Load(); v != nil {
		return v.(ConnectionState)
	}
	return StateDisconnected
}

func (w *WhatsApp) setState(state ConnectionState) {
	w.state.Store(state)
}

// GetState returns the current connection state.
func (w *WhatsApp) GetState() ConnectionState {
	return w.getState()
}

func (w *WhatsApp) getClientJID() string {
	if w.client != nil && w.client.Store.ID != nil {
		return w.client.Store.ID.String()
	}
	return ""
}

// ---------- Channel Interface ----------

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect establishes the WhatsApp Web connection via whatsmeow. If no
// existing session is found, the QR login process runs in the background
// (non-blocking) so the server can start immediately; the code is logged
// for scanning.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.setState(StateConnecting)
	w.logger.Info("whatsapp: initializing connection", "db", w.cfg.DatabasePath)

	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", w.cfg.DatabasePath),
		waLog.Noop)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("creating device store: %w", err)
	}

	device, err := container.GetFirstDevice(w.ctx)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("SourceBridge", [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		// First login, so run the QR flow in the background.
		w.setState(StateWaitingQR)
		w.logger.Info("whatsapp: no existing session, QR code required")
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("whatsapp: QR login pending", "error", err)
			}
		}()
		return nil
	}

	// Existing session: reconnect.
	if err := w.client.Connect(); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("connecting: %w", err)
	}

	w.connected.Store(true)
	w.logger.Info("whatsapp: connected (existing session)", "jid", w.getClientJID())
	return nil
}

// loginWithQR drives the QR pairing flow, logging each code.
func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR login: %w", err)
	}

	for item := range qrChan {
		switch item.Event {
		case "code":
			w.logger.Info("whatsapp: scan QR code to pair", "code", item.Code)
		case "success":
			w.logger.Info("whatsapp: QR pairing successful")
			return nil
		case "timeout":
			w.setState(StateDisconnected)
			return fmt.Errorf("QR code timed out before being scanned")
		default:
			w.logger.Debug("whatsapp: QR event", "event", item.Event)
		}
	}
	return nil
}

// Disconnect gracefully closes the WhatsApp connection.
func (w *WhatsApp) Disconnect() error {
	w.setState(StateDisconnected)
	w.connected.Store(false)

	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}

	// Mark closed before closing to avoid a send-on-closed-channel panic
	// racing with emitMessage.
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}

	w.logger.Info("whatsapp: disconnected")
	return nil
}

// SendText sends a text message to the specified JID.
func (w *WhatsApp) SendText(ctx context.Context, to string, text string) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	_, err = w.client.SendMessage(ctx, jid, buildTextMessage(text))
	if err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Receive returns the incoming messages channel.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected returns true if WhatsApp is connected.
func (w *WhatsApp) IsConnected() bool {
	return w.connected.Load()
}

// NeedsQR returns true if the session is not linked yet.
func (w *WhatsApp) NeedsQR() bool {
	return w.client != nil && w.client.Store.ID == nil && !w.connected.Load()
}

// Health returns the WhatsApp channel health status.
func (w *WhatsApp) Health() channels.HealthStatus {
	h := channels.HealthStatus{
		Connected:  w.connected.Load(),
		ErrorCount: int(w.errorCount.Load()),
		Details:    make(map[string]any),
	}
	if t, ok := w.lastMsg.Load().(time.Time); ok {
		h.LastMessageAt = t
	}
	h.Details["state"] = string(w.getState())
	if jid := w.getClientJID(); jid != "" {
		h.Details["jid"] = jid
	}
	h.Details["reconnect_attempts"] = w.reconnectAttempts.Load()
	return h
}

// attemptReconnect retries the connection with linear backoff. Guarded so
// only one attempt loop runs at a time.
func (w *WhatsApp) attemptReconnect() {
	if !w.reconnectGuard.CompareAndSwap(false, true) {
		return
	}
	defer w.reconnectGuard.Store(false)

	attempt := w.reconnectAttempts.Add(1)
	if w.cfg.MaxReconnectAttempts > 0 && int(attempt) > w.cfg.MaxReconnectAttempts {
		w.logger.Error("whatsapp: giving up after max reconnect attempts",
			"attempts", attempt)
		return
	}

	backoff := w.cfg.ReconnectBackoff * time.Duration(attempt)
	w.logger.Info("whatsapp: reconnecting", "attempt", attempt, "backoff", backoff)

	select {
	case <-time.After(backoff):
	case <-w.ctx.Done():
		return
	}

	w.setState(StateReconnecting)
	if err := w.client.Connect(); err != nil {
		w.logger.Warn("whatsapp: reconnect failed", "attempt", attempt, "error", err)
		w.setState(StateDisconnected)
		if w.ctx.Err() == nil {
			go w.attemptReconnect()
		}
	}
}

// emitMessage delivers a message to consumers, dropping on a full buffer.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.messagesClosed.Load() {
		return
	}
	select {
	case w.messages <- msg:
	default:
		w.logger.Warn("whatsapp: incoming buffer full, dropping message",
			"chat_id", msg.ChatID)
	}
}
