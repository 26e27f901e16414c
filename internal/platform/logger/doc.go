// Package logger provides structured logging functionality for the application.
//
// It builds a log/slog JSON logger at the configured level, optionally teeing
// output into a size-rotated file, and carries request-scoped loggers through
// context.Context.
package logger
