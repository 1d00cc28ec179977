package job

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "taskmaster/job"

type telemetry struct {
	polls    metric.Int64Counter
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// newTelemetry builds instruments from the global MeterProvider, which is a
// no-op unless observability.InitMetrics has run.
func newTelemetry(logger *slog.Logger) *telemetry {
	meter := otel.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	polls, err := meter.Int64Counter("taskmaster.job.polls",
		metric.WithDescription("Number of job status evaluations"),
	)
	if err != nil {
		logger.Warn("Failed to register polls counter", "error", err)
		polls, _ = fallback.Int64Counter("taskmaster.job.polls")
	}

	outcomes, err := meter.Int64Counter("taskmaster.job.outcomes",
		metric.WithDescription("Terminal job outcomes by status"),
	)
	if err != nil {
		logger.Warn("Failed to register outcomes counter", "error", err)
		outcomes, _ = fallback.Int64Counter("taskmaster.job.outcomes")
	}

	duration, err := meter.Float64Histogram("taskmaster.job.run.duration",
		metric.WithDescription("Wall-clock time from submission to terminal outcome"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("Failed to register run duration histogram", "error", err)
		duration, _ = fallback.Float64Histogram("taskmaster.job.run.duration")
	}

	return &telemetry{polls: polls, outcomes: outcomes, duration: duration}
}

func (t *telemetry) poll(ctx context.Context, namespace string) {
	t.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}

func (t *telemetry) outcome(ctx context.Context, namespace string, status Status, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("status", status.String()),
	)
	t.outcomes.Add(ctx, 1, attrs)
	t.duration.Record(ctx, elapsed.Seconds(), attrs)
}
