package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
	GenAI   GenAIConfig   `toml:"genai"`
	Live    LiveConfig    `toml:"live"`
	Polish  PolishConfig  `toml:"polish"`
	Storage StorageConfig `toml:"storage"`
	History HistoryConfig `toml:"history"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	ReadTimeoutSec     int      `toml:"read_timeout_sec"`
	WriteTimeoutSec    int      `toml:"write_timeout_sec"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// GenAIConfig contains text-generation collaborator configuration.
// The API key may be left empty in the file and supplied via the
// GEMINI_API_KEY / OPENAI_API_KEY environment variables instead.
type GenAIConfig struct {
	Provider       string `toml:"provider"` // "gemini" or "openai"
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	FlashModel     string `toml:"flash_model"`
	FlashLiteModel string `toml:"flash_lite_model"`
	ProModel       string `toml:"pro_model"`
	TimeoutSec     int    `toml:"timeout_sec"`
}

// LiveConfig contains streaming transcription session configuration
type LiveConfig struct {
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	SampleRate     int    `toml:"sample_rate"`
	ChunkSamples   int    `toml:"chunk_samples"`
	OpenTimeoutSec int    `toml:"open_timeout_sec"`
}

// PolishConfig contains transcript cleanup configuration
type PolishConfig struct {
	Model           string `toml:"model"`
	QuietIntervalMs int    `toml:"quiet_interval_ms"`
	MinChars        int    `toml:"min_chars"`
	FinalTimeoutSec int    `toml:"final_timeout_sec"`
}

// StorageConfig contains SQLite storage configuration
type StorageConfig struct {
	Path string `toml:"path"`
}

// HistoryConfig contains prompt history configuration
type HistoryConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// Default returns a configuration populated with working defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		GenAI: GenAIConfig{
			Provider:       "gemini",
			BaseURL:        "https://generativelanguage.googleapis.com",
			FlashModel:     "gemini-2.5-flash",
			FlashLiteModel: "gemini-flash-lite-latest",
			ProModel:       "gemini-3-pro-preview",
			TimeoutSec:     60,
		},
		Live: LiveConfig{
			Model:          "gemini-2.5-flash-native-audio-preview-09-2025",
			BaseURL:        "wss://generativelanguage.googleapis.com/ws",
			SampleRate:     16000,
			ChunkSamples:   4096,
			OpenTimeoutSec: 15,
		},
		Polish: PolishConfig{
			Model:           "gemini-2.5-flash",
			QuietIntervalMs: 1500,
			MinChars:        5,
			FinalTimeoutSec: 30,
		},
		Storage: StorageConfig{
			Path: "voxprompt.db",
		},
		History: HistoryConfig{
			MaxEntries: 20,
		},
	}
}

// Load reads a TOML configuration file, layering it over defaults.
// A missing api_key falls back to the provider's environment variable.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	if cfg.GenAI.APIKey == "" {
		switch cfg.GenAI.Provider {
		case "openai":
			cfg.GenAI.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			cfg.GenAI.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.GenAI.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported genai provider: %q", c.GenAI.Provider)
	}
	if c.Live.SampleRate <= 0 {
		return fmt.Errorf("live sample rate must be positive, got %d", c.Live.SampleRate)
	}
	if c.Live.ChunkSamples <= 0 {
		return fmt.Errorf("live chunk size must be positive, got %d", c.Live.ChunkSamples)
	}
	if c.Polish.QuietIntervalMs <= 0 {
		return fmt.Errorf("polish quiet interval must be positive, got %d", c.Polish.QuietIntervalMs)
	}
	if c.Polish.MinChars < 1 {
		return fmt.Errorf("polish min chars must be at least 1, got %d", c.Polish.MinChars)
	}
	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history max entries must be positive, got %d", c.History.MaxEntries)
	}
	return nil
}

// QuietInterval returns the debounce quiet interval as a duration.
func (c *Config) QuietInterval() time.Duration {
	return time.Duration(c.Polish.QuietIntervalMs) * time.Millisecond
}

// GenAITimeout returns the one-shot generation timeout as a duration.
func (c *Config) GenAITimeout() time.Duration {
	return time.Duration(c.GenAI.TimeoutSec) * time.Second
}

// FinalPolishTimeout returns the bound on the final polish call on stop.
func (c *Config) FinalPolishTimeout() time.Duration {
	return time.Duration(c.Polish.FinalTimeoutSec) * time.Second
}
