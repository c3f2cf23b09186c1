package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SKEDY_API_KEYS", "hook-key-1, hook-key-2")
	t.Setenv("SKEDY_OPENAI_API_KEYS", "sk-1,sk-2")
	t.Setenv("SKEDY_DATABASE_URL", "postgres://localhost:5432/skedy")
}

func TestLoadFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.ToolPolicy != "request" {
		t.Errorf("tool policy = %q, want request", cfg.ToolPolicy)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("session ttl = %v", cfg.SessionTTL)
	}
	if len(cfg.OpenAIKeys) != 2 {
		t.Errorf("openai keys = %v", cfg.OpenAIKeys)
	}
	if _, ok := cfg.APIKeys["hook-key-2"]; !ok {
		t.Errorf("api keys = %v", cfg.APIKeys)
	}
}

func TestLoadFromEnvRequiredSettings(t *testing.T) {
	cases := []struct {
		name  string
		unset string
	}{
		{"api keys", "SKEDY_API_KEYS"},
		{"openai keys", "SKEDY_OPENAI_API_KEYS"},
		{"database url", "SKEDY_DATABASE_URL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.unset, "")
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("missing %s accepted", tc.unset)
			}
		})
	}
}

func TestLoadFromEnvValidation(t *testing.T) {
	setRequired(t)
	t.Setenv("SKEDY_TOOL_POLICY", "vibes")
	if _, err := LoadFromEnv(); err == nil {
		t.Errorf("bad tool policy accepted")
	}

	setRequired(t)
	t.Setenv("SKEDY_TOOL_POLICY", "stage")
	t.Setenv("SKEDY_MATCH_THRESHOLD", "1.5")
	if _, err := LoadFromEnv(); err == nil {
		t.Errorf("out-of-range match threshold accepted")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SKEDY_ADDR", ":9090")
	t.Setenv("SKEDY_SESSION_TTL", "1h")
	t.Setenv("SKEDY_MATCH_THRESHOLD", "0.25")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.SessionTTL != time.Hour || cfg.MatchThreshold != 0.25 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}
