// Package wechaty implements the WeChat channel for SourceBridge through a
// Wechaty puppet gateway: outbound sends go over the gateway's REST API,
// inbound messages arrive on a webhook served by our HTTP gateway. The
// WeChat protocol itself lives entirely in the external gateway process.
package wechaty

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels"
)

// Config holds Wechaty gateway configuration.
type Config struct {
	// Enabled turns the channel on.
	Enabled bool `yaml:"enabled"`

	// BaseURL is the Wechaty gateway endpoint (e.g. "http://localhost:8788").
	BaseURL string `yaml:"base_url"`

	// Token authenticates both directions: sent as a bearer token on
	// outbound calls, required on the inbound webhook when set.
	Token string `yaml:"token"`

	// Timeout bounds a single outbound send.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8788",
		Timeout: 15 * time.Second,
	}
}

// Wechaty implements channels.Channel against a Wechaty puppet gateway.
type Wechaty struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	messages chan *channels.IncomingMessage

	connected  atomic.Bool
	closed     atomic.Bool
	errorCount atomic.Int64
	lastMsg    atomic.Value // time.Time
}

// New creates a new Wechaty channel instance.
func New(cfg Config, logger *slog.Logger) *Wechaty {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Wechaty{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "wechaty"),
		messages:   make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "wechaty".
func (w *Wechaty) Name() string { return "wechaty" }

// Connect verifies the gateway is reachable. The gateway owns the WeChat
// login; an unreachable gateway is reported but does not fail startup,
// matching the best-effort fan-out semantics.
func (w *Wechaty) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}
	w.authorize(req)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn("wechaty: gateway unreachable, sends will fail until it returns",
			"base_url", w.cfg.BaseURL, "error", err)
		w.connected.Store(true)
		return nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	w.connected.Store(true)
	w.logger.Info("wechaty: gateway reachable", "base_url", w.cfg.BaseURL, "status", resp.StatusCode)
	return nil
}

// Disconnect closes the incoming message stream.
func (w *Wechaty) Disconnect() error {
	w.connected.Store(false)
	if w.closed.CompareAndSwap(false, true) {
		close(w.messages)
	}
	w.logger.Info("wechaty: disconnected")
	return nil
}

// sendRequest is the gateway's message send payload.
type sendRequest struct {
	To      string `json:"to"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// SendText sends a text message to a WeChat room or contact via the gateway.
func (w *Wechaty) SendText(ctx context.Context, to string, text string) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	body, err := json.Marshal(sendRequest{To: to, Type: "text", Content: text})
	if err != nil {
		return fmt.Errorf("marshaling send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.cfg.BaseURL+"/message/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	w.authorize(req)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("%w: %v", channels.ErrSendFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.errorCount.Add(1)
		return fmt.Errorf("%w: gateway returned status %d", channels.ErrSendFailed, resp.StatusCode)
	}
	return nil
}

// Receive returns the incoming messages channel.
func (w *Wechaty) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected returns true if the channel is accepting traffic.
func (w *Wechaty) IsConnected() bool {
	return w.connected.Load()
}

// Health returns the channel health status.
func (w *Wechaty) Health() channels.HealthStatus {
	h := channels.HealthStatus{
		Connected:  w.connected.Load(),
		ErrorCount: int(w.errorCount.Load()),
		Details:    map[string]any{"base_url": w.cfg.BaseURL},
	}
	if t, ok := w.lastMsg.Load().(time.Time); ok {
		h.LastMessageAt = t
	}
	return h
}

// authorize attaches the bearer token when configured.
func (w *Wechaty) authorize(req *http.Request) {
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}
}

// emitMessage delivers a normalized message to consumers, dropping on a
// full buffer rather than blocking the webhook handler.
func (w *Wechaty) emitMessage(msg *channels.IncomingMessage) {
	if w.closed.Load() {
		return
	}
	w.lastMsg.Store(time.Now())

	select {
	case w.messages <- msg:
	default:
		w.logger.Warn("wechaty: incoming buffer full, dropping message",
			"chat_id", msg.ChatID)
	}
}

// checkToken validates a webhook bearer token against the configured one.
// Both sides are hashed before the constant-time compare so token length
// never leaks through timing.
func (w *Wechaty) checkToken(header string) bool {
	if w.cfg.Token == "" {
		return true
	}
	got := sha256.Sum256([]byte(strings.TrimPrefix(header, "Bearer ")))
	want := sha256.Sum256([]byte(w.cfg.Token))
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}
