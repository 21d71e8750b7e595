// Package maintenance runs periodic background jobs: a defense-in-depth
// sweep that force-times-out sessions whose timer somehow died, and a
// retention purge of old reply-log rows.
package maintenance

import (
	"log/slog"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"

	"github.com/robfig/cron/v3"
)

// staleGrace is how far past the engine's max wait a session must be
// before the sweep considers its timer dead.
const staleGrace = 30 * time.Second

// Config holds maintenance job configuration.
type Config struct {
	// Enabled turns the background jobs on.
	Enabled bool `yaml:"enabled"`

	// SweepSchedule is the cron spec for the stale-session sweep.
	SweepSchedule string `yaml:"sweep_schedule"`

	// PurgeSchedule is the cron spec for the reply-log purge.
	PurgeSchedule string `yaml:"purge_schedule"`

	// ReplyRetention is how long reply-log rows are kept.
	ReplyRetention time.Duration `yaml:"reply_retention"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		SweepSchedule:  "@every 1m",
		PurgeSchedule:  "@every 1h",
		ReplyRetention: 7 * 24 * time.Hour,
	}
}

// Purger removes old reply-log rows.
type Purger interface {
	Purge(olderThan time.Duration) (int64, error)
}

// Runner owns the cron scheduler for maintenance jobs.
type Runner struct {
	cfg        Config
	controller *inquiry.Controller
	purger     Purger
	cron       *cron.Cron
	logger     *slog.Logger
}

// New creates a maintenance runner. purger may be nil when no reply log is
// configured.
func New(cfg Config, controller *inquiry.Controller, purger Purger, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:        cfg,
		controller: controller,
		purger:     purger,
		cron:       cron.New(),
		logger:     logger.With("component", "maintenance"),
	}
}

// Start registers and starts the cron jobs.
func (r *Runner) Start() error {
	if !r.cfg.Enabled {
		return nil
	}

	if _, err := r.cron.AddFunc(r.cfg.SweepSchedule, r.SweepStaleSessions); err != nil {
		return err
	}
	if r.purger != nil {
		if _, err := r.cron.AddFunc(r.cfg.PurgeSchedule, r.purgeReplyLog); err != nil {
			return err
		}
	}

	r.cron.Start()
	r.logger.Info("maintenance jobs started",
		"sweep", r.cfg.SweepSchedule,
		"purge", r.cfg.PurgeSchedule,
	)
	return nil
}

// Stop stops the cron scheduler, waiting for running jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// SweepStaleSessions force-times-out active sessions older than the
// engine's max wait plus a grace period. The completion guard makes this
// safe to race with a live timer.
func (r *Runner) SweepStaleSessions() {
	cutoff := r.controller.Config().MaxWait + staleGrace
	swept := 0

	for _, m := range r.controller.Store().List() {
		if m.Status != inquiry.StatusActive {
			continue
		}
		if time.Since(m.StartTime) <= cutoff {
			continue
		}
		r.logger.Warn("stale session found, forcing timeout",
			"session_id", m.ID,
			"age", time.Since(m.StartTime),
		)
		r.controller.HandleTimeout(m.ID)
		swept++
	}

	if swept > 0 {
		r.logger.Info("stale session sweep complete", "swept", swept)
	}
}

// purgeReplyLog drops reply-log rows past the retention window.
func (r *Runner) purgeReplyLog() {
	if _, err := r.purger.Purge(r.cfg.ReplyRetention); err != nil {
		r.logger.Warn("reply log purge failed", "error", err)
	}
}
