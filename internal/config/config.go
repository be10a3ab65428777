// Package config loads daemon configuration for the vigil monitor. File
// values come from vigil.yaml; any key can be overridden through the
// environment (VIGIL_STORE_PATH overrides store.path).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the long-running monitor.
type Config struct {
	Profile   ProfileConfig   `mapstructure:"profile"`
	Store     StoreConfig     `mapstructure:"store"`
	Tick      TickConfig      `mapstructure:"tick"`
	Modbus    ModbusConfig    `mapstructure:"modbus"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Uplink    UplinkConfig    `mapstructure:"uplink"`
	Log       LogConfig       `mapstructure:"log"`
}

// ProfileConfig selects the safety profile. An empty path means the
// embedded default profile.
type ProfileConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig locates the diagnostic database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// TickConfig sets the wall-clock pacing of the logical tick loop.
type TickConfig struct {
	Period time.Duration `mapstructure:"period"`
}

// ModbusConfig describes the health and actuation endpoints. Mock mode
// substitutes in-process collaborators for both.
type ModbusConfig struct {
	Mock     bool          `mapstructure:"mock"`
	Endpoint string        `mapstructure:"endpoint"`
	UnitID   uint8         `mapstructure:"unit_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Channels int           `mapstructure:"channels"`
	Sensors  int           `mapstructure:"sensors"`
}

// TelemetryConfig controls the local HTTP surface (status, metrics).
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// UplinkConfig controls best-effort publication of critical entries to
// a fleet collector. Disabled when URL is empty.
type UplinkConfig struct {
	URL       string        `mapstructure:"url"`
	RPS       float64       `mapstructure:"rps"`
	Burst     int           `mapstructure:"burst"`
	Attempts  uint          `mapstructure:"attempts"`
	Timeout   time.Duration `mapstructure:"timeout"`
	TripAfter uint32        `mapstructure:"trip_after"`
}

// LogConfig tunes the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Load reads vigil.yaml from the given directory (or the working
// directory and /etc/vigil when dir is empty), layers environment
// overrides on top, and falls back to defaults when no file exists.
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("vigil")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vigil")
	}

	v.SetEnvPrefix("vigil")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No file: environment and defaults carry the run.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Tick.Period <= 0 {
		return fmt.Errorf("config: tick.period must be positive, got %s", c.Tick.Period)
	}
	if c.Store.Path == "" {
		return errors.New("config: store.path required")
	}
	if !c.Modbus.Mock && c.Modbus.Endpoint == "" {
		return errors.New("config: modbus.endpoint required unless modbus.mock is set")
	}
	if c.Modbus.Channels < 0 || c.Modbus.Sensors < 0 {
		return errors.New("config: modbus.channels and modbus.sensors must be non-negative")
	}
	if c.Uplink.URL != "" {
		if c.Uplink.RPS <= 0 {
			return errors.New("config: uplink.rps must be positive when uplink.url is set")
		}
		if c.Uplink.Attempts == 0 {
			return errors.New("config: uplink.attempts must be at least 1 when uplink.url is set")
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log.level %q", c.Log.Level)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "vigil.db")
	v.SetDefault("tick.period", 10*time.Millisecond)
	v.SetDefault("modbus.mock", false)
	v.SetDefault("modbus.unit_id", 1)
	v.SetDefault("modbus.timeout", 500*time.Millisecond)
	v.SetDefault("modbus.channels", 2)
	v.SetDefault("modbus.sensors", 8)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.addr", "127.0.0.1:9410")
	v.SetDefault("uplink.rps", 1.0)
	v.SetDefault("uplink.burst", 5)
	v.SetDefault("uplink.attempts", 3)
	v.SetDefault("uplink.timeout", 5*time.Second)
	v.SetDefault("uplink.trip_after", 5)
	v.SetDefault("log.level", "info")
}
