// Package config loads spellsync settings from spellsync.yaml, SPELLSYNC_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides: SPELLSYNC_PEER_URL sets peer.url.
const EnvPrefix = "SPELLSYNC"

// FileName is the config file searched for, without extension.
const FileName = "spellsync"

// Config is the effective configuration of one device.
type Config struct {
	Role     string `mapstructure:"role"`
	DataDir  string `mapstructure:"data_dir"`
	DeviceID string `mapstructure:"device_id"`

	// RefreshInterval is how often the daemon re-reads the cache and
	// retries pending changes.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// CreateDefault gives a companion a placeholder profile before it
	// first meets its primary.
	CreateDefault bool `mapstructure:"create_default"`

	Peer        PeerConfig        `mapstructure:"peer"`
	Cloud       CloudConfig       `mapstructure:"cloud"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// PeerConfig configures the device-to-device link.
type PeerConfig struct {
	// Listen is the primary's listen address.
	Listen string `mapstructure:"listen"`
	// Path is the WebSocket path on the primary.
	Path string `mapstructure:"path"`
	// URL is where the companion dials the primary.
	URL               string        `mapstructure:"url"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	ReplyTimeout      time.Duration `mapstructure:"reply_timeout"`
}

// CloudConfig configures the backup slot. Cloud backup is off while
// RedisAddr is empty.
type CloudConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Account   string        `mapstructure:"account"`
	Interval  time.Duration `mapstructure:"interval"`
}

// EntitlementConfig locates the purchase-state file. Empty File means
// <data_dir>/purchases.json.
type EntitlementConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Verbose    bool   `mapstructure:"verbose"`
}

// MetricsConfig toggles the /metrics endpoint on the primary.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultDataDir returns ~/.spellsync, or .spellsync when the home
// directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spellsync"
	}
	return filepath.Join(home, ".spellsync")
}

// New returns a viper instance with defaults and environment binding set.
// Callers bind flags onto it before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("role", "primary")
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("device_id", "")
	v.SetDefault("refresh_interval", 30*time.Second)
	v.SetDefault("create_default", false)

	v.SetDefault("peer.listen", ":8787")
	v.SetDefault("peer.path", "/sync")
	v.SetDefault("peer.url", "ws://localhost:8787/sync")
	v.SetDefault("peer.reconnect_interval", 5*time.Second)
	v.SetDefault("peer.reply_timeout", 10*time.Second)

	v.SetDefault("cloud.redis_addr", "")
	v.SetDefault("cloud.password", "")
	v.SetDefault("cloud.db", 0)
	v.SetDefault("cloud.account", "default")
	v.SetDefault("cloud.interval", 5*time.Minute)

	v.SetDefault("entitlement.file", "")

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.verbose", false)

	v.SetDefault("metrics.enabled", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file and decodes the result. With file set only
// that file is read and it must exist; otherwise spellsync.yaml is looked
// up in the data dir and the working directory, and may be absent.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside the daemon.
func (c *Config) Validate() error {
	switch c.Role {
	case "primary", "companion":
	default:
		return fmt.Errorf("invalid role %q (want primary or companion)", c.Role)
	}
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %s", c.RefreshInterval)
	}
	if c.Peer.ReplyTimeout <= 0 {
		return fmt.Errorf("peer.reply_timeout must be positive, got %s", c.Peer.ReplyTimeout)
	}
	if c.Cloud.RedisAddr != "" && c.Cloud.Interval <= 0 {
		return fmt.Errorf("cloud.interval must be positive, got %s", c.Cloud.Interval)
	}
	return nil
}

// CachePath is the SQLite cache file.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "spellsync.db")
}

// EntitlementPath is the purchase-state file.
func (c *Config) EntitlementPath() string {
	if c.Entitlement.File != "" {
		return c.Entitlement.File
	}
	return filepath.Join(c.DataDir, "purchases.json")
}

// CloudEnabled reports whether a backup slot is configured.
func (c *Config) CloudEnabled() bool {
	return c.Cloud.RedisAddr != ""
}

// YAML renders the effective configuration. The Redis password is masked.
func (c *Config) YAML() ([]byte, error) {
	password := c.Cloud.Password
	if password != "" {
		password = "********"
	}

	doc := map[string]any{
		"role":             c.Role,
		"data_dir":         c.DataDir,
		"device_id":        c.DeviceID,
		"refresh_interval": c.RefreshInterval.String(),
		"create_default":   c.CreateDefault,
		"peer": map[string]any{
			"listen":             c.Peer.Listen,
			"path":               c.Peer.Path,
			"url":                c.Peer.URL,
			"reconnect_interval": c.Peer.ReconnectInterval.String(),
			"reply_timeout":      c.Peer.ReplyTimeout.String(),
		},
		"cloud": map[string]any{
			"redis_addr": c.Cloud.RedisAddr,
			"password":   password,
			"db":         c.Cloud.DB,
			"account":    c.Cloud.Account,
			"interval":   c.Cloud.Interval.String(),
		},
		"entitlement": map[string]any{
			"file": c.EntitlementPath(),
		},
		"log": map[string]any{
			"file":        c.Log.File,
			"max_size_mb": c.Log.MaxSizeMB,
			"max_backups": c.Log.MaxBackups,
			"verbose":     c.Log.Verbose,
		},
		"metrics": map[string]any{
			"enabled": c.Metrics.Enabled,
		},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return out, nil
}
