// Package metrics provides a minimal recording hook for service events.
// Recording is a side effect of the hot paths, so implementations must be
// cheap and must never fail the caller.
package metrics

import "log/slog"

// Recorder receives counter and histogram observations.
type Recorder interface {
	Counter(name string, labels map[string]any)
	Histogram(name string, value float64, labels map[string]any)
}

// SlogRecorder writes observations to structured logs. It stands in for a
// real metrics backend.
type SlogRecorder struct {
	logger *slog.Logger
}

func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	return &SlogRecorder{logger: logger}
}

func (r *SlogRecorder) Counter(name string, labels map[string]any) {
	r.logger.Debug("metric", slog.String("type", "counter"), slog.String("name", name), slog.Any("labels", labels))
}

func (r *SlogRecorder) Histogram(name string, value float64, labels map[string]any) {
	r.logger.Debug("metric", slog.String("type", "histogram"), slog.String("name", name), slog.Float64("value", value), slog.Any("labels", labels))
}

// Noop discards all observations.
type Noop struct{}

func (Noop) Counter(string, map[string]any)            {}
func (Noop) Histogram(string, float64, map[string]any) {}
