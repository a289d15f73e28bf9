// Package config loads capsift settings using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CAPSIFT_LOG_LEVEL.
const EnvPrefix = "CAPSIFT"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Reader   ReaderConfig   `mapstructure:"reader"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Forward  ForwardConfig  `mapstructure:"forward"`
}

type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"` // text | json
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables a rotating log file when Path is set.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type ReaderConfig struct {
	MaxRecordLen uint32 `mapstructure:"max_record_len"`
	BufferSize   int    `mapstructure:"buffer_size"`
}

type PipelineConfig struct {
	IPv4   bool `mapstructure:"ipv4"`
	Strict bool `mapstructure:"strict"`
}

// ForwardConfig tunes the TCP sender used by dump --tcp.
type ForwardConfig struct {
	QueueLen       int           `mapstructure:"queue_len"`
	RedialInterval time.Duration `mapstructure:"redial_interval"`
}

// Load reads the YAML file at path, if any, on top of the defaults.
// Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "viper.ReadInConfig")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "viper.Unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("reader.max_record_len", 262144)
	v.SetDefault("reader.buffer_size", 1024*64)

	v.SetDefault("pipeline.ipv4", true)
	v.SetDefault("pipeline.strict", false)

	v.SetDefault("forward.queue_len", 128)
	v.SetDefault("forward.redial_interval", "10s")
}

// Default is the configuration used when no file or environment is consulted.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func (cfg *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Reader.MaxRecordLen == 0 {
		return fmt.Errorf("reader.max_record_len must be positive")
	}
	if cfg.Reader.BufferSize <= 0 {
		return fmt.Errorf("reader.buffer_size must be positive")
	}
	if cfg.Forward.QueueLen <= 0 {
		return fmt.Errorf("forward.queue_len must be positive")
	}
	if cfg.Forward.RedialInterval <= 0 {
		return fmt.Errorf("forward.redial_interval must be positive")
	}
	return nil
}
