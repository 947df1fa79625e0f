package config

import (
	"fmt"
	"strings"
	"time"
)

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type DatabaseConfig struct {
	Path                 string `mapstructure:"path"`
	BusyTimeoutMS        int    `mapstructure:"busy_timeout_ms"`
	RetentionDays        int    `mapstructure:"retention_days"`
	CleanupIntervalHours int    `mapstructure:"cleanup_interval_hours"`
}

func (d *DatabaseConfig) CleanupInterval() time.Duration {
	return time.Duration(d.CleanupIntervalHours) * time.Hour
}

type SerialConfig struct {
	Port            string `mapstructure:"port"`
	Baud            int    `mapstructure:"baud"`
	ReadTimeoutMS   int    `mapstructure:"read_timeout_ms"`
	CommandTimeoutS int    `mapstructure:"command_timeout_s"`
}

func (s *SerialConfig) CommandTimeout() time.Duration {
	return time.Duration(s.CommandTimeoutS) * time.Second
}

type MockConfig struct {
	Scenario        string `mapstructure:"scenario"`
	ScenarioFile    string `mapstructure:"scenario_file"`
	Seed            int64  `mapstructure:"seed"`
	EventIntervalMS int    `mapstructure:"event_interval_ms"`
}

type DeviceConfig struct {
	Mode        string       `mapstructure:"mode"` // serial | mock
	EventBuffer int          `mapstructure:"event_buffer"`
	Serial      SerialConfig `mapstructure:"serial"`
	Mock        MockConfig   `mapstructure:"mock"`
}

func (d *DeviceConfig) IsMock() bool {
	return strings.EqualFold(d.Mode, "mock")
}

type EventLogConfig struct {
	DenyTypes []string `mapstructure:"deny_types"`
}

type WebhookTarget struct {
	URL      string `mapstructure:"url"`
	JSONPath string `mapstructure:"jsonpath"`
}

type WebhookConfig struct {
	TimeoutS       int           `mapstructure:"timeout_s"`
	Retries        int           `mapstructure:"retries"`
	BackoffBaseS   int           `mapstructure:"backoff_base_s"`
	ContactMessage WebhookTarget `mapstructure:"contact_message"`
	ChannelMessage WebhookTarget `mapstructure:"channel_message"`
	Advertisement  WebhookTarget `mapstructure:"advertisement"`
}

func (w *WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutS) * time.Second
}

func (w *WebhookConfig) BackoffBase() time.Duration {
	return time.Duration(w.BackoffBaseS) * time.Second
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"` // tokens per second; radio duty cycles want sub-1 Hz
	Burst   float64 `mapstructure:"burst"`
}

type DebounceConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	WindowS        int      `mapstructure:"window_s"`
	Capacity       int      `mapstructure:"capacity"`
	SweepIntervalS int      `mapstructure:"sweep_interval_s"`
	Types          []string `mapstructure:"types"`
}

func (d *DebounceConfig) Window() time.Duration {
	return time.Duration(d.WindowS) * time.Second
}

func (d *DebounceConfig) SweepInterval() time.Duration {
	return time.Duration(d.SweepIntervalS) * time.Second
}

type CommandConfig struct {
	QueueCapacity int             `mapstructure:"queue_capacity"`
	FullPolicy    string          `mapstructure:"full_policy"` // reject | drop_oldest
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
	Debounce      DebounceConfig  `mapstructure:"debounce"`
}

type ShutdownConfig struct {
	GraceS int `mapstructure:"grace_s"`
}

func (s *ShutdownConfig) Grace() time.Duration {
	return time.Duration(s.GraceS) * time.Second
}
