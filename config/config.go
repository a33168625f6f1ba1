// Package config loads waitline configuration via Viper with
// defaults -> config file -> environment variable precedence.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/waitline/waitline/errors"
)

// Config represents the waitline service configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Estimator EstimatorConfig `mapstructure:"estimator"`
	Bus       BusConfig       `mapstructure:"bus"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP and websocket server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// FrontendBaseURL is the public base used when building join links
	// and QR code URLs handed to clients.
	FrontendBaseURL string `mapstructure:"frontend_base_url"`
}

// EstimatorConfig configures wait-time estimation
type EstimatorConfig struct {
	// LookbackHours bounds the history window used for averages.
	LookbackHours int `mapstructure:"lookback_hours"`
}

// BusConfig configures the durable event bus
type BusConfig struct {
	PollIntervalMS int `mapstructure:"poll_interval_ms"`
	SendTimeoutMS  int `mapstructure:"send_timeout_ms"`
}

// DefaultServerPort is used when no port is configured.
const DefaultServerPort = 8411

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the waitline configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("WAITLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	v.SetConfigName("waitline")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/waitline")

	// A missing config file is fine; defaults and env vars carry the load.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Keep going with defaults; a malformed file surfaces on Unmarshal
			// of explicit loads via LoadFromFile.
			_ = err
		}
	}

	viperInstance = v
	return v
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "waitline.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.frontend_base_url", "http://localhost:3000")

	v.SetDefault("estimator.lookback_hours", 24)

	v.SetDefault("bus.poll_interval_ms", 100)
	v.SetDefault("bus.send_timeout_ms", 1000)
}
