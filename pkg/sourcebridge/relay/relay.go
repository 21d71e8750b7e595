// Package relay wires the messaging channels to the inquiry engine. It
// consumes normalized incoming messages, decides whether each one is a
// supplier reply (its chat resolves in the routing table) or a fresh
// inquiry, fans inquiries out to supplier groups, and delivers the final
// summary back to whoever asked.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/router"
)

// Config holds relay behavior configuration.
type Config struct {
	// InquirySources lists channel names whose unrouted messages are
	// treated as inquiries (e.g. ["wechaty"]).
	InquirySources []string `yaml:"inquiry_sources"`

	// Trigger, when set, is the keyword prefix required for group messages
	// to be treated as inquiries (e.g. "@bridge"). DMs need no trigger.
	Trigger string `yaml:"trigger"`

	// SupplierChannel is the channel supplier groups live on.
	SupplierChannel string `yaml:"supplier_channel"`

	// SendTimeout bounds a single outbound send.
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		InquirySources:  []string{"wechaty"},
		SupplierChannel: "whatsapp",
		SendTimeout:     15 * time.Second,
	}
}

// ReplyAppender records replies as they arrive, for later recovery.
type ReplyAppender interface {
	Append(sessionID string, reply inquiry.Reply) error
}

// Origin identifies the chat that submitted an inquiry. The zero value
// means an API caller with no chat to deliver the summary to.
type Origin struct {
	Channel string
	ChatID  string
}

// Relay is the orchestration glue between channels and the inquiry engine.
type Relay struct {
	cfg        Config
	controller *inquiry.Controller
	routes     *inquiry.RouteTable
	router     *router.Router
	appender   ReplyAppender
	logger     *slog.Logger

	channels   map[string]channels.Channel
	channelsMu sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Relay over the given engine and category router.
func New(cfg Config, controller *inquiry.Controller, routes *inquiry.RouteTable, rt *router.Router, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.SupplierChannel == "" {
		cfg.SupplierChannel = "whatsapp"
	}
	return &Relay{
		cfg:        cfg,
		controller: controller,
		routes:     routes,
		router:     rt,
		logger:     logger.With("component", "relay"),
		channels:   make(map[string]channels.Channel),
	}
}

// SetReplyAppender configures the reply persistence collaborator. Optional.
func (r *Relay) SetReplyAppender(a ReplyAppender) {
	r.appender = a
}

// Register adds a channel to the relay. Must happen before Start.
func (r *Relay) Register(ch channels.Channel) error {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	name := ch.Name()
	if _, exists := r.channels[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	r.channels[name] = ch
	return nil
}

// Channel returns a registered channel by name, or nil.
func (r *Relay) Channel(name string) channels.Channel {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	return r.channels[name]
}

// ChannelHealth returns health status for every registered channel.
func (r *Relay) ChannelHealth() map[string]channels.HealthStatus {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()

	out := make(map[string]channels.HealthStatus, len(r.channels))
	for name, ch := range r.channels {
		out[name] = ch.Health()
	}
	return out
}

// Start connects all registered channels and begins consuming messages.
func (r *Relay) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()

	for name, ch := range r.channels {
		if err := ch.Connect(ctx); err != nil {
			r.logger.Error("channel failed to connect", "channel", name, "error", err)
			continue
		}
		r.wg.Add(1)
		go r.consume(ctx, ch)
		r.logger.Info("channel started", "channel", name)
	}
	return nil
}

// Stop disconnects channels and waits for consumers to drain.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}

	r.channelsMu.RLock()
	for name, ch := range r.channels {
		if err := ch.Disconnect(); err != nil {
			r.logger.Warn("channel disconnect failed", "channel", name, "error", err)
		}
	}
	r.channelsMu.RUnlock()

	r.wg.Wait()
}

// consume drains one channel's incoming messages.
func (r *Relay) consume(ctx context.Context, ch channels.Channel) {
	defer r.wg.Done()

	for {
		select {
		case msg, ok := <-ch.Receive():
			if !ok {
				return
			}
			r.HandleIncoming(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// HandleIncoming dispatches one normalized message: supplier reply if its
// chat resolves in the routing table, inquiry if it qualifies, otherwise
// ignored.
func (r *Relay) HandleIncoming(ctx context.Context, msg *channels.IncomingMessage) {
	if sessionID, ok := r.routes.Resolve(msg.ChatID); ok {
		r.handleReply(sessionID, msg)
		return
	}

	if text, ok := r.inquiryText(msg); ok {
		// Inquiries block on the completion waiter; never stall the
		// channel consumer.
		go func() {
			if _, err := r.ProcessInquiry(ctx, Origin{Channel: msg.Channel, ChatID: msg.ChatID}, text); err != nil {
				r.logger.Warn("inquiry failed",
					"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			}
		}()
	}
}

// handleReply normalizes and forwards a supplier reply to the engine.
func (r *Relay) handleReply(sessionID string, msg *channels.IncomingMessage) {
	sender := msg.FromName
	if sender == "" {
		sender = msg.From
	}
	reply := inquiry.Reply{
		GroupID:    msg.ChatID,
		SenderName: sender,
		Text:       msg.Content,
		Timestamp:  msg.Timestamp,
	}

	// Persist before handing to the engine so the recovery source has the
	// reply even if in-memory state is lost. Failures never block the flow.
	if r.appender != nil {
		if err := r.appender.Append(sessionID, reply); err != nil {
			r.logger.Warn("reply log append failed",
				"session_id", sessionID, "error", err)
		}
	}

	r.controller.HandleReply(sessionID, reply)
}

// inquiryText reports whether msg should open an inquiry, returning the
// inquiry text with any trigger prefix stripped.
func (r *Relay) inquiryText(msg *channels.IncomingMessage) (string, bool) {
	source := false
	for _, name := range r.cfg.InquirySources {
		if name == msg.Channel {
			source = true
			break
		}
	}
	if !source {
		return "", false
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return "", false
	}

	if r.cfg.Trigger != "" {
		if !strings.HasPrefix(text, r.cfg.Trigger) {
			// Group chatter without the trigger is not an inquiry.
			if msg.IsGroup {
				return "", false
			}
			return text, true
		}
		return strings.TrimSpace(strings.TrimPrefix(text, r.cfg.Trigger)), true
	}

	return text, true
}

// ProcessInquiry runs the full inquiry flow: categorize, create the
// session, fan out to supplier groups, wait for completion, and deliver
// the summary to the origin chat (when there is one). The returned result
// is always non-nil on success.
func (r *Relay) ProcessInquiry(ctx context.Context, origin Origin, text string) (*inquiry.Result, error) {
	routing := r.router.Route(text)
	if !routing.Success {
		r.notifyOrigin(ctx, origin, "Sorry, I could not match your inquiry to a product category.")
		return nil, fmt.Errorf("routing failed: %s", routing.Err)
	}

	s := r.controller.CreateSession("", routing, text)

	r.fanOut(ctx, s, text)

	waitRes, err := r.controller.WaitForCompletion(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("waiting for completion: %w", err)
	}
	if waitRes == nil {
		return nil, fmt.Errorf("session %s vanished before completing", s.ID)
	}

	// The session pointer stays valid even after the store purges it.
	result := s.Result()
	if result == nil {
		return nil, fmt.Errorf("session %s has no result", s.ID)
	}

	r.notifyOrigin(ctx, origin, result.Summary)
	return result, nil
}

// fanOut sends the inquiry text to every target group, best-effort. A
// partial-send failure does not abort the session.
func (r *Relay) fanOut(ctx context.Context, s *inquiry.Session, text string) {
	ch := r.Channel(r.cfg.SupplierChannel)
	if ch == nil {
		r.logger.Error("supplier channel not registered, fan-out skipped",
			"channel", r.cfg.SupplierChannel, "session_id", s.ID)
		return
	}

	outbound := fmt.Sprintf("New inquiry [%s]: %s", s.Category, text)
	for _, g := range s.TargetGroups {
		g := g
		go func() {
			sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
			defer cancel()
			if err := ch.SendText(sendCtx, g.GroupID, outbound); err != nil {
				r.logger.Warn("fan-out send failed",
					"session_id", s.ID, "group_id", g.GroupID, "error", err)
			}
		}()
	}
}

// notifyOrigin sends text back to the inquiry's origin chat, if any.
func (r *Relay) notifyOrigin(ctx context.Context, origin Origin, text string) {
	if origin.Channel == "" || origin.ChatID == "" {
		return
	}
	ch := r.Channel(origin.Channel)
	if ch == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()
	if err := ch.SendText(sendCtx, origin.ChatID, text); err != nil {
		r.logger.Warn("summary delivery failed",
			"channel", origin.Channel, "chat_id", origin.ChatID, "error", err)
	}
}
