package config

import "time"

// DefaultAuthTokenEnv names the environment variable holding the bearer
// token required for transaction submission.
const DefaultAuthTokenEnv = "ESCROW_RPC_TOKEN"

// RPC controls the JSON-RPC listener.
type RPC struct {
	// RateLimitPerMinute is the sustained request rate allowed per client.
	// Zero disables rate limiting.
	RateLimitPerMinute int    `toml:"RateLimitPerMinute"`
	RateLimitBurst     int    `toml:"RateLimitBurst"`
	AuthTokenEnv       string `toml:"AuthTokenEnv"`
	MaxBodyBytes       int64  `toml:"MaxBodyBytes"`
	ReadHeaderTimeout  int    `toml:"ReadHeaderTimeout"`
	ReadTimeout        int    `toml:"ReadTimeout"`
	WriteTimeout       int    `toml:"WriteTimeout"`
	IdleTimeout        int    `toml:"IdleTimeout"`
	TrustProxyHeaders  bool   `toml:"TrustProxyHeaders"`
}

func (r *RPC) applyDefaults() {
	if r.RateLimitPerMinute == 0 {
		r.RateLimitPerMinute = 600
	}
	if r.RateLimitBurst == 0 {
		r.RateLimitBurst = 60
	}
	if r.AuthTokenEnv == "" {
		r.AuthTokenEnv = DefaultAuthTokenEnv
	}
	if r.MaxBodyBytes == 0 {
		r.MaxBodyBytes = 1 << 20
	}
	if r.ReadHeaderTimeout == 0 {
		r.ReadHeaderTimeout = 5
	}
	if r.ReadTimeout == 0 {
		r.ReadTimeout = 15
	}
	if r.WriteTimeout == 0 {
		r.WriteTimeout = 15
	}
	if r.IdleTimeout == 0 {
		r.IdleTimeout = 60
	}
}

func seconds(v int) time.Duration { return time.Duration(v) * time.Second }

func (r RPC) ReadHeaderTimeoutDuration() time.Duration { return seconds(r.ReadHeaderTimeout) }

func (r RPC) ReadTimeoutDuration() time.Duration { return seconds(r.ReadTimeout) }

func (r RPC) WriteTimeoutDuration() time.Duration { return seconds(r.WriteTimeout) }

func (r RPC) IdleTimeoutDuration() time.Duration { return seconds(r.IdleTimeout) }
