// Package logging provides structured JSON logging for the coordinator.
// It wraps log/slog with child-logger helpers that stamp every entry with
// the session or worker it concerns, so a single log stream from many
// concurrent sessions stays attributable.
package logging
