package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels/wechaty"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels/whatsapp"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/config"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/gateway"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/maintenance"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/relay"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/replylog"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/router"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/summarize"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `sourcebridge serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay daemon",
		Long: `Start SourceBridge as a daemon: connects the WhatsApp and Wechaty
channels, serves the HTTP API, and processes inquiries until interrupted.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	// ── Build the inquiry engine ──
	store := inquiry.NewStore(logger)
	routes := inquiry.NewRouteTable(logger)
	controller := inquiry.NewController(cfg.Inquiry, store, routes, logger)
	controller.SetSummarizer(summarize.NewFromConfig(cfg.Summarizer, logger))

	var replies *replylog.Log
	if cfg.ReplyLog.Enabled {
		replies, err = replylog.Open(cfg.ReplyLog.Path, logger)
		if err != nil {
			return fmt.Errorf("opening reply log: %w", err)
		}
		defer replies.Close()
		controller.SetRecoverer(replies)
	}

	// ── Build the relay ──
	rt := router.New(cfg.Router, logger)
	rl := relay.New(cfg.Relay, controller, routes, rt, logger)
	if replies != nil {
		rl.SetReplyAppender(replies)
	}

	var wc *wechaty.Wechaty
	if cfg.Channels.WhatsApp.Enabled {
		if err := rl.Register(whatsapp.New(cfg.Channels.WhatsApp, logger)); err != nil {
			return err
		}
	}
	if cfg.Channels.Wechaty.Enabled {
		wc = wechaty.New(cfg.Channels.Wechaty, logger)
		if err := rl.Register(wc); err != nil {
			return err
		}
	}

	// ── Start ──
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rl.Start(ctx); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}

	var gw *gateway.Gateway
	if cfg.Gateway.Enabled {
		gw = gateway.New(cfg.Gateway, rl, store, logger)
		if wc != nil {
			gw.MountWebhook("wechaty", wc.WebhookHandler())
		}
		if err := gw.Start(ctx); err != nil {
			return fmt.Errorf("starting gateway: %w", err)
		}
	}

	var purger maintenance.Purger
	if replies != nil {
		purger = replies
	}
	mnt := maintenance.New(cfg.Maintenance, controller, purger, logger)
	if err := mnt.Start(); err != nil {
		return fmt.Errorf("starting maintenance: %w", err)
	}

	logger.Info("SourceBridge running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"reply_threshold", cfg.Inquiry.ReplyThreshold,
		"max_wait", cfg.Inquiry.MaxWait,
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		mnt.Stop()
		if gw != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := gw.Shutdown(shutdownCtx); err != nil {
				logger.Warn("gateway shutdown failed", "error", err)
			}
		}
		rl.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("stopped cleanly")
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timed out, exiting anyway")
	}

	return nil
}
