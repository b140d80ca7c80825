// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Backend     BackendConfig     `yaml:"backend"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Feedback    FeedbackConfig    `yaml:"feedback"`
	Wave        WaveConfig        `yaml:"wave"`
}

// ServerConfig represents the control server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8090"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// BackendConfig represents the streaming backend configuration.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	TimeoutMs int    `yaml:"timeout_ms" default:"15000" validate:"gte=0,lte=120000"`
}

// Timeout returns the backend request timeout.
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	PlayStartDelayMs int `yaml:"play_start_delay_ms" default:"100" validate:"gte=0,lte=5000"`
	PreloadDelayMs   int `yaml:"preload_delay_ms" default:"1000" validate:"gte=0,lte=30000"`
}

// PlayStartDelay returns the delay between setting a source and playing it.
func (c PlaybackConfig) PlayStartDelay() time.Duration {
	return time.Duration(c.PlayStartDelayMs) * time.Millisecond
}

// PreloadDelay returns the delay before neighbor preloading starts.
func (c PlaybackConfig) PreloadDelay() time.Duration {
	return time.Duration(c.PreloadDelayMs) * time.Millisecond
}

// PersistenceConfig represents local and remote persistence configuration.
type PersistenceConfig struct {
	LocalDir            string `yaml:"local_dir" default:"data"`
	MaxLocalEntryBytes  int    `yaml:"max_local_entry_bytes" default:"4194304" validate:"gt=0"`
	ChunkThresholdBytes int    `yaml:"chunk_threshold_bytes" default:"5242880" validate:"gt=0"`
	DebounceMs          int    `yaml:"debounce_ms" default:"2000" validate:"gte=0,lte=60000"`
	LoadRetries         int    `yaml:"load_retries" default:"3" validate:"gte=1,lte=10"`
	LoadRetryDelayMs    int    `yaml:"load_retry_delay_ms" default:"2000" validate:"gte=0,lte=60000"`
}

// Debounce returns the remote push coalescing window.
func (c PersistenceConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// LoadRetryDelay returns the delay between remote load attempts.
func (c PersistenceConfig) LoadRetryDelay() time.Duration {
	return time.Duration(c.LoadRetryDelayMs) * time.Millisecond
}

// FeedbackConfig represents recommendation feedback configuration.
type FeedbackConfig struct {
	BackoffMinMs   int `yaml:"backoff_min_ms" default:"2000" validate:"gte=0"`
	BackoffMaxMs   int `yaml:"backoff_max_ms" default:"5000" validate:"gte=0"`
	DedupeWindowMs int `yaml:"dedupe_window_ms" default:"10000" validate:"gte=0"`
}

// BackoffMin returns the lower bound of the refill backoff.
func (c FeedbackConfig) BackoffMin() time.Duration {
	return time.Duration(c.BackoffMinMs) * time.Millisecond
}

// BackoffMax returns the upper bound of the refill backoff.
func (c FeedbackConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// DedupeWindow returns the duplicate-finished suppression window.
func (c FeedbackConfig) DedupeWindow() time.Duration {
	return time.Duration(c.DedupeWindowMs) * time.Millisecond
}

// WaveConfig represents recommendation wave configuration.
type WaveConfig struct {
	BatchSize int `yaml:"batch_size" default:"5" validate:"gte=1,lte=50"`
	MinAhead  int `yaml:"min_ahead" default:"5" validate:"gte=0,lte=50"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("WAVEPLAY_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("WAVEPLAY_DATA_DIR"); v != "" {
		c.Persistence.LocalDir = v
	}
	if v := os.Getenv("WAVEPLAY_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Feedback.BackoffMaxMs < c.Feedback.BackoffMinMs {
		return errors.Newf("feedback backoff_max_ms (%d) must be >= backoff_min_ms (%d)",
			c.Feedback.BackoffMaxMs, c.Feedback.BackoffMinMs)
	}

	return nil
}
