// Package config loads and validates the receptionist's runtime settings
// from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// APIKeys authenticate inbound webhook callers (telephony provider).
	APIKeys map[string]struct{}

	// OpenAIKeys are the upstream credentials the session pool balances
	// across, comma separated.
	OpenAIKeys []string

	RealtimeURL string
	Model       string
	Voice       string

	RedisURL    string
	DatabaseURL string

	StripeAPIKey string

	// ToolPolicy selects how tools are exposed: "request" (default) or
	// "stage".
	ToolPolicy string

	SessionTTL       time.Duration
	RemovalGrace     time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// MatchThreshold is the maximum normalized edit distance accepted when
	// resolving spoken service names. Zero means the library default.
	MatchThreshold float64

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("SKEDY_ADDR", ":8080"),
		APIKeys:             make(map[string]struct{}),
		RealtimeURL:         envOr("SKEDY_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		Model:               envOr("SKEDY_REALTIME_MODEL", "gpt-realtime"),
		Voice:               envOr("SKEDY_REALTIME_VOICE", "alloy"),
		RedisURL:            envOr("SKEDY_REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:         strings.TrimSpace(os.Getenv("SKEDY_DATABASE_URL")),
		StripeAPIKey:        strings.TrimSpace(os.Getenv("SKEDY_STRIPE_API_KEY")),
		ToolPolicy:          envOr("SKEDY_TOOL_POLICY", "request"),
		SessionTTL:          envDurationOr("SKEDY_SESSION_TTL", 24*time.Hour),
		RemovalGrace:        envDurationOr("SKEDY_REMOVAL_GRACE", 30*time.Second),
		HandshakeTimeout:    envDurationOr("SKEDY_HANDSHAKE_TIMEOUT", 10*time.Second),
		WriteTimeout:        envDurationOr("SKEDY_WRITE_TIMEOUT", 10*time.Second),
		MatchThreshold:      envFloat64Or("SKEDY_MATCH_THRESHOLD", 0),
		ReadHeaderTimeout:   envDurationOr("SKEDY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("SKEDY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, key := range splitCSV(os.Getenv("SKEDY_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	cfg.OpenAIKeys = splitCSV(os.Getenv("SKEDY_OPENAI_API_KEYS"))

	if len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("SKEDY_API_KEYS must be set")
	}
	if len(cfg.OpenAIKeys) == 0 {
		return Config{}, fmt.Errorf("SKEDY_OPENAI_API_KEYS must be set")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("SKEDY_DATABASE_URL must be set")
	}
	switch cfg.ToolPolicy {
	case "request", "stage":
	default:
		return Config{}, fmt.Errorf("SKEDY_TOOL_POLICY must be one of request|stage")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SKEDY_SESSION_TTL must be > 0")
	}
	if cfg.RemovalGrace < 0 {
		return Config{}, fmt.Errorf("SKEDY_REMOVAL_GRACE must be >= 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("SKEDY_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WriteTimeout <= 0 {
		return Config{}, fmt.Errorf("SKEDY_WRITE_TIMEOUT must be > 0")
	}
	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 1 {
		return Config{}, fmt.Errorf("SKEDY_MATCH_THRESHOLD must be within [0, 1]")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SKEDY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SKEDY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
