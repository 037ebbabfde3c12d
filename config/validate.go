package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate rejects configurations the node cannot start with.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return err
	}
	if cfg.RPC.RateLimitPerMinute < 0 || cfg.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if cfg.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must not be negative")
	}
	for _, name := range cfg.PausedPrograms {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("PausedPrograms: empty program name")
		}
	}
	return nil
}

// SlogLevel parses LogLevel.
func (cfg *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		return level, fmt.Errorf("LogLevel: %w", err)
	}
	return level, nil
}
