// Package config loads and validates client configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. GEOREPORT_API_BASE_URL.
const EnvPrefix = "GEOREPORT"

// Config captures all client configuration knobs loaded via Viper.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Foreground ForegroundConfig `mapstructure:"foreground"`
	Background BackgroundConfig `mapstructure:"background"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// APIConfig points the client at the analysis backend.
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RetryCount     int    `mapstructure:"retry_count"`
	RetryWaitMs    int    `mapstructure:"retry_wait_ms"`
	RetryMaxWaitMs int    `mapstructure:"retry_max_wait_ms"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ForegroundConfig governs the blocking run-and-poll flow.
type ForegroundConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// MaxWaitSeconds bounds a foreground run. Zero waits indefinitely.
	MaxWaitSeconds int `mapstructure:"max_wait_seconds"`
}

// BackgroundConfig governs the multi-job tracker.
type BackgroundConfig struct {
	PollIntervalMs     int `mapstructure:"poll_interval_ms"`
	ExpireAfterSeconds int `mapstructure:"expire_after_seconds"`
	PollTimeoutSeconds int `mapstructure:"poll_timeout_seconds"`
	MaxConcurrentPolls int `mapstructure:"max_concurrent_polls"`
}

// NotifyConfig sizes the notification hub.
type NotifyConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms"`
	Console        bool `mapstructure:"console"`
}

// PubSubConfig holds metadata for exporting notifications to Pub/Sub.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the local tracker API.
type ServerConfig struct {
	Port                     int `mapstructure:"port"`
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig controls OpenTelemetry trace context on backend calls and the local API.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3001")
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.retry_count", 0)
	v.SetDefault("api.retry_wait_ms", 500)
	v.SetDefault("api.retry_max_wait_ms", 5000)
	v.SetDefault("api.user_agent", "geo-report-client/0.1")
	v.SetDefault("foreground.poll_interval_ms", 1000)
	v.SetDefault("foreground.max_wait_seconds", 0)
	v.SetDefault("background.poll_interval_ms", 2000)
	v.SetDefault("background.expire_after_seconds", 30)
	v.SetDefault("background.poll_timeout_seconds", 10)
	v.SetDefault("background.max_concurrent_polls", 8)
	v.SetDefault("notify.buffer_size", 64)
	v.SetDefault("notify.max_batch_events", 16)
	v.SetDefault("notify.max_batch_wait_ms", 100)
	v.SetDefault("notify.sink_timeout_ms", 2000)
	v.SetDefault("notify.console", true)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "georeport")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.API.RetryCount < 0 {
		return fmt.Errorf("api.retry_count must be >= 0")
	}
	if c.Foreground.PollIntervalMs <= 0 {
		return fmt.Errorf("foreground.poll_interval_ms must be > 0")
	}
	if c.Foreground.MaxWaitSeconds < 0 {
		return fmt.Errorf("foreground.max_wait_seconds must be >= 0")
	}
	if c.Background.PollIntervalMs <= 0 {
		return fmt.Errorf("background.poll_interval_ms must be > 0")
	}
	if c.Background.ExpireAfterSeconds <= 0 {
		return fmt.Errorf("background.expire_after_seconds must be > 0")
	}
	if c.Background.MaxConcurrentPolls <= 0 {
		return fmt.Errorf("background.max_concurrent_polls must be > 0")
	}
	if c.Notify.BufferSize <= 0 {
		return fmt.Errorf("notify.buffer_size must be > 0")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// APITimeout returns the per-request timeout for backend calls.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// ForegroundInterval returns the delay between foreground polls.
func (c Config) ForegroundInterval() time.Duration {
	return time.Duration(c.Foreground.PollIntervalMs) * time.Millisecond
}

// ForegroundMaxWait returns the foreground deadline, zero when unbounded.
func (c Config) ForegroundMaxWait() time.Duration {
	return time.Duration(c.Foreground.MaxWaitSeconds) * time.Second
}

// BackgroundInterval returns the tracker tick period.
func (c Config) BackgroundInterval() time.Duration {
	return time.Duration(c.Background.PollIntervalMs) * time.Millisecond
}

// ExpireAfter returns how long terminal entries stay in the tracker.
func (c Config) ExpireAfter() time.Duration {
	return time.Duration(c.Background.ExpireAfterSeconds) * time.Second
}

// BackgroundPollTimeout bounds a single background poll. Zero means no extra bound.
func (c Config) BackgroundPollTimeout() time.Duration {
	return time.Duration(c.Background.PollTimeoutSeconds) * time.Second
}
