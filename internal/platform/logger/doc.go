// Package logger provides structured logging functionality for the application.
//
// It builds log/slog loggers with either a JSON handler (production) or a
// colored tint handler (local development), and carries request-scoped loggers
// through context.Context.
package logger
