package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:      "bad port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantError: true,
		},
		{
			name:      "unknown provider",
			mutate:    func(c *Config) { c.GenAI.Provider = "acme" },
			wantError: true,
		},
		{
			name:      "zero sample rate",
			mutate:    func(c *Config) { c.Live.SampleRate = 0 },
			wantError: true,
		},
		{
			name:      "zero chunk size",
			mutate:    func(c *Config) { c.Live.ChunkSamples = 0 },
			wantError: true,
		},
		{
			name:      "zero quiet interval",
			mutate:    func(c *Config) { c.Polish.QuietIntervalMs = 0 },
			wantError: true,
		},
		{
			name:      "zero history cap",
			mutate:    func(c *Config) { c.History.MaxEntries = 0 },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[server]
port = 9090

[polish]
quiet_interval_ms = 500
min_chars = 3

[genai]
provider = "gemini"
api_key = "file-key"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port: want 9090, got %d", cfg.Server.Port)
	}
	if cfg.Polish.MinChars != 3 {
		t.Errorf("min chars: want 3, got %d", cfg.Polish.MinChars)
	}
	if got := cfg.QuietInterval(); got != 500*time.Millisecond {
		t.Errorf("quiet interval: want 500ms, got %v", got)
	}
	if cfg.GenAI.APIKey != "file-key" {
		t.Errorf("api key: want file-key, got %q", cfg.GenAI.APIKey)
	}
	// Untouched sections keep their defaults.
	if cfg.History.MaxEntries != 20 {
		t.Errorf("history cap: want default 20, got %d", cfg.History.MaxEntries)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEnvFallbackForAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GenAI.APIKey != "env-key" {
		t.Errorf("api key: want env-key, got %q", cfg.GenAI.APIKey)
	}
}
