// Package config loads sprintboard settings from defaults, an optional
// sprintboard.yaml file and SPRINTBOARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Storage drivers understood by the serve command.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const envPrefix = "SPRINTBOARD"

// Config holds the runtime settings of the server and CLI.
type Config struct {
	Addr        string
	Driver      string
	DBPath      string
	DatabaseURL string
	LogLevel    string
	Metrics     bool
}

// New returns a viper instance with defaults and environment binding configured.
// Commands bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("sprintboard")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("addr", ":8080")
	v.SetDefault("driver", DriverSQLite)
	v.SetDefault("db_path", "data/sprintboard.db")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics", true)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and validates the merged settings.
// A missing file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := Config{
		Addr:        v.GetString("addr"),
		Driver:      strings.ToLower(v.GetString("driver")),
		DBPath:      v.GetString("db_path"),
		DatabaseURL: v.GetString("database_url"),
		LogLevel:    v.GetString("log_level"),
		Metrics:     v.GetBool("metrics"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the driver and its connection settings.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("config: db_path is required for the sqlite driver")
		}
	case DriverPostgres:
		// pgx falls back to DATABASE_URL when database_url is empty.
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown driver %q", c.Driver)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name onto a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid log_level %q", name)
	}
	return level, nil
}
