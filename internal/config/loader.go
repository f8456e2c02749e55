package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before stripping, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	standard, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("strip jsonc: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standard, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// WithDefaults returns a Config with every field defaulted, for callers that
// cannot find a config file and need a workable fallback rather than a zero
// value.
func WithDefaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18420
	}
	if cfg.Session.MaxSessions == 0 {
		cfg.Session.MaxSessions = 10
	}
	if cfg.Session.GracePeriodSeconds == 0 {
		cfg.Session.GracePeriodSeconds = 60
	}
	if cfg.Session.ParallelMaxSessions == 0 {
		cfg.Session.ParallelMaxSessions = 5
	}
	if cfg.Emulator.MaxWait == 0 {
		cfg.Emulator.MaxWait = 30
	}
	if cfg.Emulator.WaitSleep == 0 {
		cfg.Emulator.WaitSleep = 1
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}
	if cfg.Persistence.DSN == "" {
		cfg.Persistence.DSN = IastPath() + "/iast.db"
	}
	if cfg.Secrets.KeyPath == "" {
		cfg.Secrets.KeyPath = IastPath() + "/.age-key"
	}
	if cfg.Secrets.VaultPath == "" {
		cfg.Secrets.VaultPath = IastPath() + "/credentials.jsonc"
	}
	if cfg.Netstore.Root == "" {
		cfg.Netstore.Root = IastPath() + "/netstore"
	}
}
