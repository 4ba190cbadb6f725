package http

import (
	"context"
	"log/slog"
)

const serviceName = "bubble-backend"

// httpLogger tags every adapter log line with the shared service/module/layer
// fields so log queries can slice by transport.
func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
		"layer", "adapter",
	)
}

// logHTTPOperationError records a rejected request. Client-caused rejections
// (4xx) log at warn; only server faults escalate to error.
func logHTTPOperationError(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	level := slog.LevelWarn
	if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	httpLogger().Log(ctx, level, "http operation failed", fields...)
}
