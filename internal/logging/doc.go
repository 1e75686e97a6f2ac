// Package logging builds the slog loggers shared by the CLI and the
// recording controller.
//
// It parses log levels, fans output out to stdout/stderr/file writers,
// and offers a small attribute façade so call sites stay compact. All
// components receive a *slog.Logger from here rather than constructing
// their own handlers.
package logging
