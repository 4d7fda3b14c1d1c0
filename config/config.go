// Package config provides YAML-based configuration loading for the cogrpc
// command.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration of the cogrpc command.
type Config struct {
	// Server is the relay URL, http:// or https://.
	Server string `mapstructure:"server"`

	// RequireTLS refuses plaintext server URLs.
	RequireTLS bool `mapstructure:"require_tls"`

	// CallDeadline bounds each deliver/collect call from its start.
	CallDeadline time.Duration `mapstructure:"call_deadline"`

	// CloseGrace is how long shutdown waits for in-flight calls. Zero means
	// CallDeadline.
	CloseGrace time.Duration `mapstructure:"close_grace"`

	// CompatHandshake caps TLS at 1.2.
	CompatHandshake bool `mapstructure:"compat_handshake"`

	// CCAFile holds the serialized Cargo Collection Authorization.
	CCAFile string `mapstructure:"cca_file"`

	Spool SpoolConfig `mapstructure:"spool"`

	Log LogConfig `mapstructure:"log"`
}

// SpoolConfig locates the outbox and inbox directories.
type SpoolConfig struct {
	Outbox string `mapstructure:"outbox"`
	Inbox  string `mapstructure:"inbox"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation RotationConfig `mapstructure:"rotation"`

	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

const defaultCallDeadline = 5 * time.Second

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		RequireTLS:   true,
		CallDeadline: defaultCallDeadline,
		Spool: SpoolConfig{
			Outbox: "./spool/outbox",
			Inbox:  "./spool/inbox",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/cogrpc.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise from
// $COGRPC_CONFIG or a cogrpc.yaml found in the usual locations. A missing
// file is not an error when searching. Environment variables use the prefix
// COGRPC, with `.` and `-` replaced by `_`.
// Example: COGRPC_SPOOL_OUTBOX=/var/spool/cogrpc/out
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COGRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("server", cfg.Server)
	v.SetDefault("require_tls", cfg.RequireTLS)
	v.SetDefault("call_deadline", cfg.CallDeadline)
	v.SetDefault("close_grace", cfg.CloseGrace)
	v.SetDefault("compat_handshake", cfg.CompatHandshake)
	v.SetDefault("cca_file", cfg.CCAFile)
	v.SetDefault("spool.outbox", cfg.Spool.Outbox)
	v.SetDefault("spool.inbox", cfg.Spool.Inbox)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv("COGRPC_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cogrpc")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".cogrpc"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	if c.Server != "" {
		if err := ValidateServer(c.Server); err != nil {
			return err
		}
	}
	if c.CallDeadline <= 0 {
		return fmt.Errorf("invalid call_deadline: %s", c.CallDeadline)
	}
	if c.CloseGrace < 0 {
		return fmt.Errorf("invalid close_grace: %s", c.CloseGrace)
	}
	if strings.TrimSpace(c.Spool.Outbox) == "" || strings.TrimSpace(c.Spool.Inbox) == "" {
		return errors.New("spool.outbox and spool.inbox are required")
	}
	return nil
}

// ValidateServer checks that s is an absolute http(s) URL with a host.
func ValidateServer(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid server %q: %w", s, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return fmt.Errorf("invalid server %q: want http(s)://host[:port]", s)
	}
	return nil
}
