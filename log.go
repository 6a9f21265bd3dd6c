package zstream

import "log/slog"

// Global logger for the package; only debug-level events are emitted.
var log = slog.Default()

// SetLogger configures the global logger
func SetLogger(l *slog.Logger) {
	log = l
}
