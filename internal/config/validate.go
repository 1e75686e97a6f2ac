package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePerfetto(); err != nil {
		return err
	}
	if err := c.validateRecording(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validatePerfetto() error {
	if c.Perfetto.Binary == "" {
		return errors.New("perfetto.binary must be set")
	}
	if c.Perfetto.SessionTag == "" {
		return errors.New("perfetto.session_tag must be set")
	}
	if c.Perfetto.StartupTimeoutSeconds <= 0 {
		return errors.New("perfetto.startup_timeout_seconds must be positive")
	}
	if c.Perfetto.StopTimeoutSeconds <= 0 {
		return errors.New("perfetto.stop_timeout_seconds must be positive")
	}
	if c.Perfetto.ListTimeoutSeconds <= 0 {
		return errors.New("perfetto.list_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRecording() error {
	if c.Recording.DefaultBufferSizeKB <= 0 {
		return errors.New("recording.default_buffer_size_kb must be positive")
	}
	if c.Recording.DefaultLongTraceSizeMB < 0 {
		return errors.New("recording.default_long_trace_size_mb must not be negative")
	}
	if c.Recording.DefaultLongTraceDurationMinutes < 0 {
		return errors.New("recording.default_long_trace_duration_minutes must not be negative")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.MinKeepCount < 0 {
		return errors.New("retention.min_keep_count must not be negative")
	}
	if c.Retention.MinKeepAgeDays < 0 {
		return errors.New("retention.min_keep_age_days must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
