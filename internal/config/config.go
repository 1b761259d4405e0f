package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type InstrumentationConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RetentionDays   int     `mapstructure:"retention_days"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
	BufferSize      int     `mapstructure:"buffer_size"`
	FlushIntervalMs int     `mapstructure:"flush_interval_ms"`
}

type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	SelectPlus      SelectPlusConfig      `mapstructure:"selectplus"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
	Demo            DemoConfig            `mapstructure:"demo"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// SelectPlusConfig holds defaults applied to every field the resources build.
type SelectPlusConfig struct {
	DefaultLabel string `mapstructure:"default_label"`
	// OptionLimit caps how many rows an entity-backed option query returns
	// when the field's own filters did not set a limit. Zero means unlimited.
	OptionLimit int `mapstructure:"option_limit"`
}

type DemoConfig struct {
	Seed      bool   `mapstructure:"seed"`
	CoffeeURL string `mapstructure:"coffee_url"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Load reads app.yaml from the working directory (or two levels up) over the
// defaults below. Every key can be overridden from the environment with the
// SELECTPLUS_ prefix, e.g. SELECTPLUS_DATABASE_DRIVER=postgres.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "selectplus")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("selectplus.default_label", "name")
	v.SetDefault("selectplus.option_limit", 0)
	v.SetDefault("instrumentation.enabled", true)
	v.SetDefault("instrumentation.retention_days", 7)
	v.SetDefault("instrumentation.sampling_rate", 1.0)
	v.SetDefault("instrumentation.buffer_size", 500)
	v.SetDefault("instrumentation.flush_interval_ms", 100)
	v.SetDefault("demo.seed", true)
	v.SetDefault("demo.coffee_url", "https://api.sampleapis.com/coffee/hot")

	v.SetEnvPrefix("SELECTPLUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if r := c.Instrumentation.SamplingRate; r < 0 || r > 1 {
		return fmt.Errorf("config: instrumentation.sampling_rate must be within [0, 1], got %v", r)
	}
	if c.SelectPlus.OptionLimit < 0 {
		return fmt.Errorf("config: selectplus.option_limit must not be negative")
	}
	return nil
}
