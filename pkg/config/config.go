package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/groboclown/p4ic4idea-sub032/internal/ratelimiter"
	"github.com/groboclown/p4ic4idea-sub032/pkg/rpcconn"
	"github.com/groboclown/p4ic4idea-sub032/pkg/transport"
)

// Config is the complete p4rpc configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (P4RPC_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// RPC describes the Perforce server connection
	RPC RPCConfig `mapstructure:"rpc" yaml:"rpc"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// RPCConfig describes how to reach and talk to the server.
type RPCConfig struct {
	// Address is a P4PORT-style address ("ssl:perforce:1666", "host:1666",
	// "1666"). When set it overrides Host, Port and Secure.
	Address string `mapstructure:"address" yaml:"address,omitempty"`

	Host   string `mapstructure:"host" yaml:"host" validate:"required"`
	Port   int    `mapstructure:"port" yaml:"port" validate:"required,gt=0,lte=65535"`
	Secure bool   `mapstructure:"secure" yaml:"secure"`

	// Charset is the Perforce charset name used on non-unicode servers
	Charset string `mapstructure:"charset" yaml:"charset,omitempty" validate:"omitempty,p4charset"`

	// Unicode forces unicode mode from the start of the connection
	Unicode bool `mapstructure:"unicode" yaml:"unicode"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"gte=0"`

	// MaxPacketSize bounds incoming payloads in bytes
	MaxPacketSize int `mapstructure:"max_packet_size" yaml:"max_packet_size" validate:"gte=0"`

	// Tuning holds the socket options
	Tuning transport.Tuning `mapstructure:"tuning" yaml:"tuning"`

	// Properties are p4java-style RPC properties (tcpNoDelay, sockSoTimeout,
	// ...). They are applied on top of Tuning.
	Properties map[string]any `mapstructure:"properties" yaml:"properties,omitempty"`

	// DialRate throttles connection attempts per server address
	DialRate DialRateConfig `mapstructure:"dial_rate" yaml:"dial_rate"`
}

// DialRateConfig configures the per-address dial limiter.
type DialRateConfig struct {
	// PerSecond is the sustained attempt rate; 0 disables throttling
	PerSecond float64 `mapstructure:"per_second" yaml:"per_second" validate:"gte=0"`

	// Burst is the number of attempts allowed back to back
	Burst uint `mapstructure:"burst" yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"omitempty,gt=0,lte=65535"`
}

// ConnConfig resolves the settings rpcconn.Dial needs, folding Properties
// into Tuning.
func (c *RPCConfig) ConnConfig() (rpcconn.Config, error) {
	tuning, err := TuningFromProperties(c.Tuning, c.Properties)
	if err != nil {
		return rpcconn.Config{}, err
	}
	return rpcconn.Config{
		Host:           c.Host,
		Port:           c.Port,
		Secure:         c.Secure,
		Tuning:         tuning,
		Charset:        c.Charset,
		Unicode:        c.Unicode,
		MaxPacketSize:  c.MaxPacketSize,
		ConnectTimeout: c.ConnectTimeout,
	}, nil
}

// Limiter builds the dial limiter described by DialRate.
func (c *RPCConfig) Limiter() *ratelimiter.DialLimiter {
	return ratelimiter.New(c.DialRate.PerSecond, c.DialRate.Burst)
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolveAddress(&cfg.RPC); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: P4RPC_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("P4RPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/p4rpc/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// an explicit path that does not exist is not a ConfigFileNotFoundError
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func resolveAddress(cfg *RPCConfig) error {
	if cfg.Address == "" {
		return nil
	}
	host, port, secure, err := transport.SplitAddr(cfg.Address)
	if err != nil {
		return fmt.Errorf("rpc.address %q: %w", cfg.Address, err)
	}
	cfg.Host, cfg.Port, cfg.Secure = host, port, secure
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "p4rpc")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "p4rpc")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
