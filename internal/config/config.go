package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Timezone        string            `yaml:"timezone"`
	Coordinator     CoordinatorConfig `yaml:"coordinator"`
	Device          DeviceConfig      `yaml:"device"`
	Calendar        CalendarConfig    `yaml:"calendar"`
	API             APIConfig         `yaml:"api"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Notify          NotifyConfig      `yaml:"notify"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level         string   `yaml:"level"`
	Colors        bool     `yaml:"colors"`
	UseJSON       bool     `yaml:"use_json"`
	PrintSchedule Duration `yaml:"print_schedule"` // Interval to print schedule (0 = disabled)
}

// CoordinatorConfig controls the periodic resolution loop
type CoordinatorConfig struct {
	TickInterval Duration `yaml:"tick_interval"`
	Workers      int      `yaml:"workers"`      // Max groups applied in parallel
	CallTimeout  Duration `yaml:"call_timeout"` // Timeout for a single device call
}

// DeviceConfig selects and configures the device adapter
type DeviceConfig struct {
	Driver       string   `yaml:"driver"` // memory | homeassistant
	URL          string   `yaml:"url"`
	Token        string   `yaml:"token"`
	Timeout      Duration `yaml:"timeout"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
}

// CalendarConfig describes the workday signal used by 5/2 schedules
type CalendarConfig struct {
	Workdays []string `yaml:"workdays"` // mon..sun, default mon-fri
	Holidays []string `yaml:"holidays"` // YYYY-MM-DD dates treated as non-workdays
}

// APIConfig contains control API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupSchedule string `yaml:"cleanup_schedule"` // cron expression
	RetentionDays   int    `yaml:"retention_days"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// NotifyConfig lists outbound webhooks receiving transition events
type NotifyConfig struct {
	Webhooks []string `yaml:"webhooks"`
	Timeout  Duration `yaml:"timeout"`
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes configuration bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	switch cfg.Device.Driver {
	case "memory", "homeassistant":
	default:
		return nil, fmt.Errorf("unknown device driver %q", cfg.Device.Driver)
	}
	if cfg.Device.Driver == "homeassistant" && cfg.Device.URL == "" {
		return nil, fmt.Errorf("device.url is required for the homeassistant driver")
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./climated.sqlite"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Coordinator defaults
	if cfg.Coordinator.TickInterval == 0 {
		cfg.Coordinator.TickInterval = Duration(30 * time.Second)
	}
	if cfg.Coordinator.Workers <= 0 {
		cfg.Coordinator.Workers = 4
	}
	if cfg.Coordinator.CallTimeout == 0 {
		cfg.Coordinator.CallTimeout = Duration(10 * time.Second)
	}

	// Device defaults
	if cfg.Device.Driver == "" {
		cfg.Device.Driver = "memory"
	}
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(15 * time.Second)
	}
	if cfg.Device.RateLimitRPS == 0 {
		cfg.Device.RateLimitRPS = 10.0 // 10 requests per second
	}

	if len(cfg.Calendar.Workdays) == 0 {
		cfg.Calendar.Workdays = []string{"mon", "tue", "wed", "thu", "fri"}
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupSchedule == "" {
		cfg.Ledger.CleanupSchedule = "@daily"
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = Duration(5 * time.Second)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
