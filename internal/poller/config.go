package poller

import (
	"log/slog"
	"time"
)

// DefaultInterval is the pause between the completion of one query and the
// issuance of the next while a task is still processing.
const DefaultInterval = time.Second

// Config holds configuration for a poller
type Config struct {
	// Interval is the wait between one query completing and the next starting.
	// If zero or negative, DefaultInterval is used.
	Interval time.Duration

	// MaxConsecutiveFailures abandons polling after this many query failures
	// in a row. Zero means never give up.
	MaxConsecutiveFailures int

	// MaxElapsedWithoutSuccess abandons polling when no query has succeeded for
	// this long, measured from the last success or from Start. Zero means
	// never give up.
	MaxElapsedWithoutSuccess time.Duration
}

// DefaultConfig returns a Config that polls every second and never abandons
// a task on its own.
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
	}
}

// normalize replaces invalid values with defaults, logging each substitution.
func (c Config) normalize(logger *slog.Logger) Config {
	if c.Interval <= 0 {
		if c.Interval < 0 {
			logger.Warn("invalid poll interval specified, using default",
				"specified_interval", c.Interval,
				"default_interval", DefaultInterval)
		}
		c.Interval = DefaultInterval
	}
	if c.MaxConsecutiveFailures < 0 {
		logger.Warn("invalid failure cutoff specified, polling without one",
			"specified_count", c.MaxConsecutiveFailures)
		c.MaxConsecutiveFailures = 0
	}
	if c.MaxElapsedWithoutSuccess < 0 {
		logger.Warn("invalid elapsed cutoff specified, polling without one",
			"specified_duration", c.MaxElapsedWithoutSuccess)
		c.MaxElapsedWithoutSuccess = 0
	}
	return c
}
