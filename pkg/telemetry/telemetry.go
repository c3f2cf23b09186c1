// Package telemetry provides a fire-and-forget trace/error reporting surface
// for the call orchestration core. Reporters must never block or fail the
// operation that emits to them.
package telemetry

import (
	"log/slog"
	"sort"
)

// Reporter receives breadcrumbs and error reports from the core.
type Reporter interface {
	Breadcrumb(message, category string, data map[string]any)
	ReportError(err error, context map[string]any)
}

// LogReporter writes telemetry to a slog.Logger.
type LogReporter struct {
	Logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{Logger: logger}
}

func (r *LogReporter) Breadcrumb(message, category string, data map[string]any) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Debug(message, "category", category, "data", data)
}

func (r *LogReporter) ReportError(err error, context map[string]any) {
	if r == nil || r.Logger == nil || err == nil {
		return
	}
	r.Logger.Error("reported error", "error", err, "context", context)
}

// Nop discards everything. Useful as a default and in tests.
type Nop struct{}

func (Nop) Breadcrumb(string, string, map[string]any) {}
func (Nop) ReportError(error, map[string]any)         {}

// RedactKeys returns the sorted key names of an argument map. Values are
// dropped so caller-supplied data (addresses, phone numbers) never lands in
// error reports.
func RedactKeys(args map[string]any) []string {
	if len(args) == 0 {
		return nil
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
