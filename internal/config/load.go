package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "OCRWATCH"

// FileName is the base name of the optional config file, without extension.
const FileName = "ocrwatch"

// Default values
const (
	DefaultBaseURL   = "http://localhost:8001"
	DefaultTimeout   = 30 * time.Second
	DefaultInterval  = time.Second
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// keys lists every setting so each can be bound to its environment variable
// even when no file mentions it.
var keys = []string{
	"api.base_url",
	"api.timeout",
	"poll.interval",
	"poll.max_consecutive_failures",
	"poll.max_elapsed_without_success",
	"log.level",
	"log.format",
	"journal.path",
}

// Load reads configuration from defaults, ocrwatch.yaml in the working
// directory or $HOME/.config/ocrwatch (if present), and the environment.
func Load() (*Config, error) {
	return load("")
}

// LoadFile is Load with an explicit config file, which must exist. An empty
// path behaves like Load.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", DefaultTimeout)
	v.SetDefault("poll.interval", DefaultInterval)
	v.SetDefault("poll.max_consecutive_failures", 0)
	v.SetDefault("poll.max_elapsed_without_success", time.Duration(0))
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("journal.path", "")

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
