// Package logger configures the process-wide slog JSON logger and carries
// request-scoped loggers through context.Context, so trace identifiers
// follow a request into services and background tasks.
package logger
