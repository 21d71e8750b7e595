// Package gateway provides the HTTP API for SourceBridge: inquiry
// submission, session inspection, the Wechaty inbound webhook, and health.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/relay"
)

// Config holds gateway configuration.
type Config struct {
	// Enabled turns the HTTP API on.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address (e.g. ":8085").
	Address string `yaml:"address"`

	// AuthToken, when set, requires Authorization: Bearer on /api/*.
	AuthToken string `yaml:"auth_token"`

	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Address: ":8085",
	}
}

// InquiryService is the slice of the relay the gateway needs.
type InquiryService interface {
	ProcessInquiry(ctx context.Context, origin relay.Origin, text string) (*inquiry.Result, error)
	ChannelHealth() map[string]channels.HealthStatus
}

// Gateway is the HTTP API server.
type Gateway struct {
	cfg       Config
	service   InquiryService
	store     *inquiry.Store
	webhooks  map[string]http.Handler
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
	mu        sync.Mutex
}

// New creates a new Gateway over the inquiry service and session store.
func New(cfg Config, service InquiryService, store *inquiry.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8085"
	}
	return &Gateway{
		cfg:      cfg,
		service:  service,
		store:    store,
		webhooks: make(map[string]http.Handler),
		logger:   logger.With("component", "gateway"),
	}
}

// MountWebhook registers an inbound webhook handler at /webhook/<name>.
// Must be called before Start.
func (g *Gateway) MountWebhook(name string, h http.Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.webhooks[name] = h
}

// Start starts the HTTP server. Non-blocking; errors after startup are
// logged.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/api/inquiry", g.handleInquiry)
	mux.HandleFunc("/api/sessions", g.handleSessions)
	mux.HandleFunc("/api/sessions/", g.handleSessionByID)

	g.mu.Lock()
	for name, h := range g.webhooks {
		mux.Handle("/webhook/"+name, h)
	}
	g.mu.Unlock()

	handler := g.corsMiddleware(g.authMiddleware(mux))

	g.server = &http.Server{
		Addr:              g.cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		g.logger.Info("gateway listening", "address", g.cfg.Address)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the HTTP server gracefully.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	if err := g.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}
