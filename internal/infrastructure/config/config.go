package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "meshbridge/internal/shared/config"
)

type Config struct {
	App      sharedConfig.AppConfig      `mapstructure:"app"`
	Server   sharedConfig.ServerConfig   `mapstructure:"server"`
	Logger   sharedConfig.LoggerConfig   `mapstructure:"logger"`
	Database sharedConfig.DatabaseConfig `mapstructure:"database"`
	Device   sharedConfig.DeviceConfig   `mapstructure:"device"`
	EventLog sharedConfig.EventLogConfig `mapstructure:"eventlog"`
	Webhooks sharedConfig.WebhookConfig  `mapstructure:"webhooks"`
	Commands sharedConfig.CommandConfig  `mapstructure:"commands"`
	Shutdown sharedConfig.ShutdownConfig `mapstructure:"shutdown"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables. path may be
// empty, in which case the usual configs/ locations are searched and a missing
// file is fine (defaults + env cover a mock-mode run out of the box).
func Load(path string) (*Config, error) {
	v := viper.New()

	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MESHBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func validate(c *Config) error {
	switch strings.ToLower(c.Device.Mode) {
	case "serial", "mock":
	default:
		return fmt.Errorf("device.mode must be serial or mock, got %q", c.Device.Mode)
	}
	switch c.Commands.FullPolicy {
	case "reject", "drop_oldest":
	default:
		return fmt.Errorf("commands.full_policy must be reject or drop_oldest, got %q", c.Commands.FullPolicy)
	}
	if c.Commands.QueueCapacity < 1 {
		return fmt.Errorf("commands.queue_capacity must be >= 1, got %d", c.Commands.QueueCapacity)
	}
	if c.Device.EventBuffer < 1 {
		return fmt.Errorf("device.event_buffer must be >= 1, got %d", c.Device.EventBuffer)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "meshbridge")
	v.SetDefault("app.env", "production")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	// Database defaults
	v.SetDefault("database.path", "meshbridge.db")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.retention_days", 30)
	v.SetDefault("database.cleanup_interval_hours", 6)

	// Device defaults
	v.SetDefault("device.mode", "serial")
	v.SetDefault("device.event_buffer", 1024)
	v.SetDefault("device.serial.port", "/dev/ttyUSB0")
	v.SetDefault("device.serial.baud", 115200)
	v.SetDefault("device.serial.read_timeout_ms", 500)
	v.SetDefault("device.serial.command_timeout_s", 5)
	v.SetDefault("device.mock.scenario", "")
	v.SetDefault("device.mock.scenario_file", "")
	v.SetDefault("device.mock.seed", 0)
	v.SetDefault("device.mock.event_interval_ms", 1500)

	// Event log defaults
	v.SetDefault("eventlog.deny_types", []string{"RAW_DATA", "CONTROL"})

	// Webhook defaults
	v.SetDefault("webhooks.timeout_s", 5)
	v.SetDefault("webhooks.retries", 3)
	v.SetDefault("webhooks.backoff_base_s", 2)
	v.SetDefault("webhooks.contact_message.url", "")
	v.SetDefault("webhooks.contact_message.jsonpath", "$")
	v.SetDefault("webhooks.channel_message.url", "")
	v.SetDefault("webhooks.channel_message.jsonpath", "$")
	v.SetDefault("webhooks.advertisement.url", "")
	v.SetDefault("webhooks.advertisement.jsonpath", "$")

	// Command pipeline defaults
	v.SetDefault("commands.queue_capacity", 100)
	v.SetDefault("commands.full_policy", "reject")
	v.SetDefault("commands.rate_limit.enabled", true)
	v.SetDefault("commands.rate_limit.rate", 0.2)
	v.SetDefault("commands.rate_limit.burst", 5)
	v.SetDefault("commands.debounce.enabled", true)
	v.SetDefault("commands.debounce.window_s", 5)
	v.SetDefault("commands.debounce.capacity", 1000)
	v.SetDefault("commands.debounce.sweep_interval_s", 30)
	v.SetDefault("commands.debounce.types", []string{"send_message", "send_channel_message", "send_advert"})

	// Shutdown defaults
	v.SetDefault("shutdown.grace_s", 20)
}
