// Package config loads pincafe settings from a YAML file, a .env file and
// PINCAFE_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes environment overrides, e.g. PINCAFE_SYNC_INTERVAL.
const EnvPrefix = "PINCAFE"

// Config is the full application configuration.
type Config struct {
	DBPath   string `mapstructure:"db_path" yaml:"db_path"`
	DeviceID string `mapstructure:"device_id" yaml:"device_id"`

	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync"`
	API    APIConfig    `mapstructure:"api" yaml:"api"`
	Relay  RelayConfig  `mapstructure:"relay" yaml:"relay"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Backup BackupConfig `mapstructure:"backup" yaml:"backup"`
}

// SyncConfig controls the sync coordinator and its transport.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"-"`

	// Enabled and AutoSync are first-run defaults. Values saved on the
	// device take precedence.
	Enabled  bool `mapstructure:"enabled" yaml:"enabled"`
	AutoSync bool `mapstructure:"auto_sync" yaml:"auto_sync"`

	// RelayURL of the shared relay. Empty keeps documents in process.
	RelayURL string `mapstructure:"relay_url" yaml:"relay_url"`
	Tenant   string `mapstructure:"tenant" yaml:"tenant"`
}

// MarshalYAML writes the interval as a duration string such as "3s".
func (s SyncConfig) MarshalYAML() (any, error) {
	type plain SyncConfig
	return struct {
		plain    `yaml:",inline"`
		Interval string `yaml:"interval"`
	}{plain(s), s.Interval.String()}, nil
}

// APIConfig configures the device HTTP API.
type APIConfig struct {
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Metrics bool   `mapstructure:"metrics" yaml:"metrics"`
}

// RelayConfig configures the relay server command.
type RelayConfig struct {
	Addr   string `mapstructure:"addr" yaml:"addr"`
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Mode is "development" or "production".
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`

	FileEnable bool   `mapstructure:"file_enable" yaml:"file_enable"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// BackupConfig configures scheduled snapshot backups.
type BackupConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	Keep     int    `mapstructure:"keep" yaml:"keep"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "pincafe.db")
	v.SetDefault("device_id", "")

	v.SetDefault("sync.interval", 3*time.Second)
	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.auto_sync", false)
	v.SetDefault("sync.relay_url", "")
	v.SetDefault("sync.tenant", "default")

	v.SetDefault("api.addr", "127.0.0.1:8080")
	v.SetDefault("api.metrics", true)

	v.SetDefault("relay.addr", ":8787")
	v.SetDefault("relay.db_path", "relay.db")

	v.SetDefault("log.mode", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_enable", false)
	v.SetDefault("log.filename", "pincafe.log")
	v.SetDefault("log.max_size_mb", 64)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.schedule", "@daily")
	v.SetDefault("backup.keep", 14)
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path is required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive (got %v)", c.Sync.Interval)
	}
	if c.Sync.RelayURL != "" && strings.TrimSpace(c.Sync.Tenant) == "" {
		return errors.New("sync.tenant is required with sync.relay_url")
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep cannot be negative (got %d)", c.Backup.Keep)
	}
	switch c.Log.Mode {
	case "development", "production":
	default:
		return fmt.Errorf("log.mode must be development or production (got %q)", c.Log.Mode)
	}
	return nil
}

// Loader reads the configuration and optionally follows file changes.
type Loader struct {
	v      *viper.Viper
	logger *zap.Logger

	mu      sync.Mutex
	current *Config
}

// Load reads path (when non-empty, or pincafe.yaml in the working directory
// when present), then .env, then the environment.
func Load(path string) (*Loader, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pincafe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	l := &Loader{v: v, logger: zap.NewNop()}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Config returns the most recently loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// SetLogger sets the logger used for reload messages.
func (l *Loader) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.logger = logger.Named("config")
}

// Watch reloads the file on change and calls fn with the old and new
// configuration. Invalid edits are logged and ignored. Watch does nothing
// when no config file is in use.
func (l *Loader) Watch(fn func(old, updated *Config)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.reload(e.Name, fn)
	})
	l.v.WatchConfig()
}

func (l *Loader) reload(name string, fn func(old, updated *Config)) {
	cfg, err := l.decode()
	if err != nil {
		l.logger.Warn("ignoring config change", zap.String("file", name), zap.Error(err))
		return
	}
	l.mu.Lock()
	old := l.current
	l.current = cfg
	l.mu.Unlock()

	l.logger.Info("config reloaded", zap.String("file", name))
	if fn != nil {
		fn(old, cfg)
	}
}
