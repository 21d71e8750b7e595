// Package config – keyring.go resolves the summarizer API key using the
// operating system's native keyring (Linux: Secret Service, macOS:
// Keychain, Windows: Credential Manager).
//
// Priority: OS keyring → environment variable → config file value. A
// missing key is a mode (concatenation fallback), not an error.
package config

import (
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "sourcebridge"

	// keyringAPIKey is the key name for the summarizer API key.
	keyringAPIKey = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring. Returns "" if absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// ResolveAPIKey fills cfg.Summarizer.APIKey from the highest-priority
// available source.
func ResolveAPIKey(cfg *Config) {
	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.Summarizer.APIKey = val
		return
	}
	for _, env := range []string{"SOURCEBRIDGE_API_KEY", "OPENAI_API_KEY"} {
		if val := os.Getenv(env); val != "" {
			cfg.Summarizer.APIKey = val
			return
		}
	}
	// Keep whatever the config file carried (possibly empty).
	cfg.ExpandEnv()
}
