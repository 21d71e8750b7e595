// Package config defines and loads the SourceBridge configuration: channel
// settings, the inquiry engine tuning, routing rules, summarizer API,
// reply log, gateway, and maintenance jobs. Config is YAML with .env
// support; secrets resolve keyring → environment → config file.
package config

import (
	"fmt"
	"os"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels/wechaty"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/channels/whatsapp"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/gateway"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/maintenance"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/relay"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/router"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/summarize"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ChannelsConfig groups the per-channel settings.
type ChannelsConfig struct {
	WhatsApp whatsapp.Config `yaml:"whatsapp"`
	Wechaty  wechaty.Config  `yaml:"wechaty"`
}

// ReplyLogConfig configures the SQLite reply log.
type ReplyLogConfig struct {
	// Enabled turns reply persistence (and recovery) on.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite file location.
	Path string `yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Config holds all SourceBridge configuration.
type Config struct {
	// Name identifies this instance in logs.
	Name string `yaml:"name"`

	// Channels configures the messaging channels.
	Channels ChannelsConfig `yaml:"channels"`

	// Inquiry configures the reply-aggregation engine.
	Inquiry inquiry.Config `yaml:"inquiry"`

	// Router configures category routing rules.
	Router router.Config `yaml:"router"`

	// Summarizer configures the LLM summarizer.
	Summarizer summarize.Config `yaml:"summarizer"`

	// ReplyLog configures reply persistence.
	ReplyLog ReplyLogConfig `yaml:"reply_log"`

	// Relay configures inquiry detection and fan-out behavior.
	Relay relay.Config `yaml:"relay"`

	// Gateway configures the HTTP API.
	Gateway gateway.Config `yaml:"gateway"`

	// Maintenance configures background sweeps.
	Maintenance maintenance.Config `yaml:"maintenance"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	wa := whatsapp.DefaultConfig()
	wa.Enabled = true
	wc := wechaty.DefaultConfig()
	wc.Enabled = true

	return &Config{
		Name: "sourcebridge",
		Channels: ChannelsConfig{
			WhatsApp: wa,
			Wechaty:  wc,
		},
		Inquiry:    inquiry.DefaultConfig(),
		Summarizer: summarize.DefaultConfig(),
		ReplyLog: ReplyLogConfig{
			Enabled: true,
			Path:    "./data/replies.db",
		},
		Relay:       relay.DefaultConfig(),
		Gateway:     gateway.DefaultConfig(),
		Maintenance: maintenance.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML config at path, overlaying it on the defaults. A
// .env file in the working directory is loaded first (silently ignored if
// absent).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references first so every secret field is usable even
	// when the API key later resolves from the keyring or environment.
	cfg.ExpandEnv()
	ResolveAPIKey(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML bytes into a Config, starting from defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML with restricted permissions. The API key
// is never written in clear; it is replaced by an env reference.
func Save(cfg *Config, path string) error {
	sanitized := *cfg
	if sanitized.Summarizer.APIKey != "" {
		sanitized.Summarizer.APIKey = "${SOURCEBRIDGE_API_KEY}"
	}
	if sanitized.Gateway.AuthToken != "" {
		sanitized.Gateway.AuthToken = "${SOURCEBRIDGE_AUTH_TOKEN}"
	}

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Inquiry.Validate(); err != nil {
		return fmt.Errorf("inquiry: %w", err)
	}
	if c.Channels.WhatsApp.Enabled && c.Channels.WhatsApp.DatabasePath == "" {
		return fmt.Errorf("channels.whatsapp.database_path is required")
	}
	if c.Channels.Wechaty.Enabled && c.Channels.Wechaty.BaseURL == "" {
		return fmt.Errorf("channels.wechaty.base_url is required")
	}
	if c.ReplyLog.Enabled && c.ReplyLog.Path == "" {
		return fmt.Errorf("reply_log.path is required")
	}
	if len(c.Router.Categories) == 0 {
		return fmt.Errorf("router.categories must not be empty")
	}
	return nil
}

// ExpandEnv replaces ${VAR} references left in string fields after YAML
// parsing. Only the secret-bearing fields are expanded.
func (c *Config) ExpandEnv() {
	c.Summarizer.APIKey = os.ExpandEnv(c.Summarizer.APIKey)
	c.Gateway.AuthToken = os.ExpandEnv(c.Gateway.AuthToken)
	c.Channels.Wechaty.Token = os.ExpandEnv(c.Channels.Wechaty.Token)
}
