package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the DriftFS daemon configuration.
//
// This structure captures the static configuration of the daemon:
//   - Logging configuration
//   - Data directory (lock file, local object store, PID file)
//   - Mount definitions (path plus backing store selection)
//   - Maintenance intervals (stats flush, inode unload)
//   - Management API server settings
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DRIFTFS_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// DataDir is the daemon state directory. It holds the instance lock,
	// the local object store, and the PID file.
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Mounts lists the mount points to bring up at startup
	Mounts []MountConfig `mapstructure:"mounts" validate:"omitempty,dive" yaml:"mounts"`

	// Maintenance controls the periodic background jobs
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance"`

	// API contains management API server configuration
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// PrivHelper contains privileged helper process configuration
	PrivHelper PrivHelperConfig `mapstructure:"privhelper" yaml:"privhelper"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MountConfig describes a single mount point and the backing store that
// serves its data.
type MountConfig struct {
	// Path is the absolute mount point path
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// Store selects the backing store for this mount
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// StoreConfig selects and configures a backing store. Mounts that name
// the same (kind, name) pair share one store instance.
type StoreConfig struct {
	// Kind is the backing store type
	// Valid values: s3, filedir
	Kind string `mapstructure:"kind" validate:"required,oneof=s3 filedir" yaml:"kind"`

	// Name identifies the store instance within its kind.
	// For s3 stores this is the bucket name; for filedir stores it is a
	// free-form label.
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// S3 holds s3-specific settings (used when Kind is "s3")
	S3 S3StoreConfig `mapstructure:"s3" yaml:"s3,omitempty"`

	// Root is the directory to serve (used when Kind is "filedir")
	Root string `mapstructure:"root" yaml:"root,omitempty"`
}

// S3StoreConfig holds s3 backing store settings.
type S3StoreConfig struct {
	// Region is the AWS region (optional, SDK default if empty)
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// KeyPrefix is prepended to all object keys
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// ForcePathStyle forces path-style addressing (Localstack/MinIO)
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`

	// AccessKeyID and SecretAccessKey select static credentials.
	// Leave both empty to use the default AWS credential chain.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// MaintenanceConfig controls the periodic background jobs that run on the
// daemon's main loop.
type MaintenanceConfig struct {
	// StatsFlushInterval is how often per-mount counters are flushed to
	// the metrics sink.
	// Default: 1s
	StatsFlushInterval time.Duration `mapstructure:"stats_flush_interval" validate:"omitempty,gt=0" yaml:"stats_flush_interval"`

	// InodeUnloadInterval is how often aged inodes are unloaded from
	// mounted filesystems. Zero disables the job.
	InodeUnloadInterval time.Duration `mapstructure:"inode_unload_interval" validate:"omitempty,gte=0" yaml:"inode_unload_interval"`

	// InodeUnloadAge is the minimum idle age before an inode is eligible
	// for unloading.
	// Default: 1h
	InodeUnloadAge time.Duration `mapstructure:"inode_unload_age" validate:"omitempty,gt=0" yaml:"inode_unload_age"`
}

// APIConfig configures the management API HTTP server.
type APIConfig struct {
	// Enabled controls whether the management API server is started
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the management API
	// Default: 8553
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Host is the listen address
	// Default: 127.0.0.1
	Host string `mapstructure:"host" yaml:"host"`

	// ReadTimeout is the maximum duration for reading a request
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out a response
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// MetricsConfig configures Prometheus metrics exposure.
// Metrics are served on the management API under /metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// PrivHelperConfig configures the privileged helper connection. The
// helper performs the actual mount and unmount syscalls on behalf of
// the unprivileged daemon.
type PrivHelperConfig struct {
	// SocketPath is the unix socket the helper listens on. Empty
	// disables the helper; mounts are then attached in-process.
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path,omitempty"`

	// ConnectTimeout bounds the initial connection to the helper.
	// Default: 5s
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// LogFile, when set, is sent to the helper after connecting so its
	// diagnostics follow the daemon's log. The start command fills it in
	// when daemonizing.
	LogFile string `mapstructure:"log_file" yaml:"log_file,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DRIFTFS_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  driftfs init\n\n"+
				"Or specify a custom config file:\n"+
				"  driftfs <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  driftfs init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use DRIFTFS_ prefix and underscores
	// Example: DRIFTFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DRIFTFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/driftfs/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// current directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "driftfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "driftfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
