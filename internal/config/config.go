package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	API     APIConfig     `mapstructure:"api"     validate:"required"`
	Poll    PollConfig    `mapstructure:"poll"    validate:"required"`
	Log     LogConfig     `mapstructure:"log"     validate:"required"`
	Journal JournalConfig `mapstructure:"journal"`
}

// APIConfig describes how to reach the OCR service.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"gt=0"`
}

// PollConfig controls the status polling loop.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`

	// Zero disables the corresponding cutoff.
	MaxConsecutiveFailures   int           `mapstructure:"max_consecutive_failures"    validate:"gte=0"`
	MaxElapsedWithoutSuccess time.Duration `mapstructure:"max_elapsed_without_success" validate:"gte=0"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// JournalConfig locates the optional sqlite observation journal.
// An empty Path disables it.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}
