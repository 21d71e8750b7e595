// Package summarize provides the reply summarizer strategies: an LLM-backed
// summarizer (OpenAI-compatible chat completions) and a deterministic
// concatenation fallback. The strategy is selected once at startup; the
// lifecycle controller additionally falls back per-call on failure.
package summarize

import (
	"context"
	"log/slog"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
)

// Config holds summarizer configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible API base (e.g. "https://api.openai.com/v1").
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the provider. Empty means the LLM
	// summarizer is absent and the concatenation fallback is used; that is
	// a mode, not an error.
	APIKey string `yaml:"api_key"`

	// Model is the model name (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// Timeout bounds a single summarization call.
	Timeout time.Duration `yaml:"timeout"`

	// Language is the preferred summary language (e.g. "zh-CN").
	Language string `yaml:"language"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// NewFromConfig selects the summarizer strategy: LLM-backed when an API key
// is configured, the pure concatenation formatter otherwise.
func NewFromConfig(cfg Config, logger *slog.Logger) inquiry.Summarizer {
	if cfg.APIKey == "" {
		if logger != nil {
			logger.Info("no summarizer API key configured, using concatenation fallback")
		}
		return ConcatSummarizer{}
	}
	return NewLLMSummarizer(cfg, logger)
}

// ConcatSummarizer renders replies with the deterministic fallback format.
// It is pure and never fails.
type ConcatSummarizer struct{}

// Summarize implements inquiry.Summarizer.
func (ConcatSummarizer) Summarize(_ context.Context, replies []inquiry.Reply) (string, error) {
	return inquiry.FallbackSummary(replies), nil
}
