// Package config loads process configuration from environment variables,
// following the same getEnv/getEnvInt-with-defaults shape the teacher
// codebase uses in cmd/main.go. CLI flag parsing and file-based config
// formats remain out of scope here (spec.md's non-goals: packaging).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable knob the four core subsystems need.
type Config struct {
	ListenAddr string

	AuthStateFile string

	LogLevel string
	LogPretty bool

	RateLimitMaxFailures int
	RateLimitWindow      time.Duration
	RateLimitLockout     time.Duration
	RateLimitCleanup     time.Duration

	SignedTokenTTL time.Duration

	TransferStateDir   string
	TransferIdleTimeout time.Duration

	OAuthGitHubClientID     string
	OAuthGitHubClientSecret string
	OAuthGoogleClientID     string
	OAuthGoogleClientSecret string

	EncoderKeyframeInterval uint32
}

// Load reads configuration from the environment, applying the defaults
// spec.md pins for each constant (max_failures=10, window_secs=300, etc.).
func Load() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ListenAddr: getEnv("TERMWEB_LISTEN_ADDR", ":7681"),

		AuthStateFile: getEnv("TERMWEB_AUTH_STATE_FILE", home+"/.termweb/auth.json"),

		LogLevel:  getEnv("TERMWEB_LOG_LEVEL", "info"),
		LogPretty: getEnv("TERMWEB_LOG_PRETTY", "false") == "true",

		RateLimitMaxFailures: getEnvInt("TERMWEB_RATE_MAX_FAILURES", 10),
		RateLimitWindow:      getEnvSeconds("TERMWEB_RATE_WINDOW_SECS", 300),
		RateLimitLockout:     getEnvSeconds("TERMWEB_RATE_LOCKOUT_SECS", 300),
		RateLimitCleanup:     getEnvSeconds("TERMWEB_RATE_CLEANUP_SECS", 60),

		SignedTokenTTL: getEnvSeconds("TERMWEB_SIGNED_TOKEN_TTL_SECS", 900),

		TransferStateDir:    getEnv("TERMWEB_TRANSFER_STATE_DIR", home+"/.termweb/transfers"),
		TransferIdleTimeout: getEnvSeconds("TERMWEB_TRANSFER_IDLE_TIMEOUT_SECS", 1800),

		OAuthGitHubClientID:     os.Getenv("TERMWEB_OAUTH_GITHUB_CLIENT_ID"),
		OAuthGitHubClientSecret: os.Getenv("TERMWEB_OAUTH_GITHUB_CLIENT_SECRET"),
		OAuthGoogleClientID:     os.Getenv("TERMWEB_OAUTH_GOOGLE_CLIENT_ID"),
		OAuthGoogleClientSecret: os.Getenv("TERMWEB_OAUTH_GOOGLE_CLIENT_SECRET"),

		EncoderKeyframeInterval: uint32(getEnvInt("TERMWEB_ENCODER_KEYFRAME_INTERVAL", 600)),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallbackSecs int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSecs)) * time.Second
}
