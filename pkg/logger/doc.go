// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package, emitting JSON in production and
// text elsewhere, and resolves "-" or file paths into log destinations.
package logger
