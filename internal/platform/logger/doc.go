// Package logger provides structured logging functionality for the application.
//
// It configures a log/slog JSON handler on stdout with the configured level,
// optionally teeing records to additional handlers such as the OpenTelemetry
// log bridge, and carries request-scoped loggers through context.Context.
package logger
