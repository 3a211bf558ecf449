// Package config loads process configuration from an optional YAML file and
// environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration.
type Config struct {
	ListenAddr   string        `yaml:"listen_addr"`
	DatabaseURL  string        `yaml:"database_url"`
	LogLevel     string        `yaml:"log_level"`
	TickInterval time.Duration `yaml:"tick_interval"`
	CORSOrigins  []string      `yaml:"cors_origins"`

	Storage StorageConfig `yaml:"storage"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Weather WeatherConfig `yaml:"weather"`
}

// StorageConfig selects the default storage handle of runs.
type StorageConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// OpenAIConfig configures the llm node.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// WeatherConfig configures the weather node.
type WeatherConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		LogLevel:     "info",
		TickInterval: time.Second,
		CORSOrigins:  []string{"http://localhost:3003"},
		Storage:      StorageConfig{Type: "memory"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"LISTEN_ADDR":     &c.ListenAddr,
		"DATABASE_URL":    &c.DatabaseURL,
		"LOG_LEVEL":       &c.LogLevel,
		"STORAGE_TYPE":    &c.Storage.Type,
		"STORAGE_PATH":    &c.Storage.Path,
		"OPENAI_API_KEY":  &c.OpenAI.APIKey,
		"OPENAI_MODEL":    &c.OpenAI.Model,
		"OPENAI_BASE_URL": &c.OpenAI.BaseURL,
		"WEATHER_API_URL": &c.Weather.BaseURL,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("TICK_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TICK_INTERVAL: %w", err)
		}
		c.TickInterval = d
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.CORSOrigins = append(c.CORSOrigins, origin)
			}
		}
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	switch c.Storage.Type {
	case "", "memory", "badger", "redis":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == "badger" && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required for badger storage")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}
