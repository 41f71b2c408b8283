package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/labstack/gommon/bytes"
	"github.com/subosito/gotenv"
)

type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`
	LogFile string `env:"LOG_FILE"`

	// Gemini
	GeminiAPIKey string  `env:"GEMINI_API_KEY"`
	GeminiModel  string  `env:"GEMINI_MODEL" envDefault:"gemini-2.5-pro"`
	Temperature  float32 `env:"GEMINI_TEMPERATURE" envDefault:"0.3"`
	UseMockLLM   bool    `env:"USE_MOCK_LLM" envDefault:"false"`

	// Phrases that open the final answer. Separated by "|" since the
	// defaults contain commas.
	ThinkingMarkers []string `env:"THINKING_MARKERS" envSeparator:"|" envDefault:"Okay, here|Here's the"`

	// Sessions
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	APIKey           string        `env:"API_KEY"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	DocumentCacheTTL time.Duration `env:"DOCUMENT_CACHE_TTL" envDefault:"47h"`
	MaxUploadSize    string        `env:"MAX_UPLOAD_SIZE" envDefault:"20MiB"`

	// Voice
	VoiceEnabled  bool   `env:"VOICE_ENABLED" envDefault:"false"`
	VoiceLanguage string `env:"VOICE_LANGUAGE" envDefault:"en-US"`

	// Limits
	RateLimit     float64 `env:"RATE_LIMIT" envDefault:"20"`
	MaxConcurrent int     `env:"MAX_CONCURRENT" envDefault:"10"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = gotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.UseMockLLM && c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY must be set unless USE_MOCK_LLM=true")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("GEMINI_TEMPERATURE out of range: %v", c.Temperature)
	}
	if _, err := c.UploadLimit(); err != nil {
		return err
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT must be positive: %d", c.MaxConcurrent)
	}
	return nil
}

// UploadLimit is MAX_UPLOAD_SIZE in bytes.
func (c *Config) UploadLimit() (int64, error) {
	n, err := bytes.Parse(c.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("MAX_UPLOAD_SIZE: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("MAX_UPLOAD_SIZE must be positive: %q", c.MaxUploadSize)
	}
	return n, nil
}
