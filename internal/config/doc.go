// Package config loads, normalizes, and validates traced configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every
// knob the CLI and recording controller need: the recording output
// directory, perfetto binary and timeouts, recording defaults, and
// retention thresholds.
//
// Always obtain settings through this package so downstream code
// receives sanitized paths and clear validation errors.
package config
