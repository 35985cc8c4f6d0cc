package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const recordsScopeName = "github.com/dataiku/clubhouse-migration/records"

// Record outcomes reported in the chmigrate.records counter.
const (
	OutcomeMigrated = "migrated"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"

	OutcomeArchived = "archived"
	OutcomeDeleted  = "deleted"
)

// Records instruments per-record work: one span per record, a counter per
// outcome, a retry counter and a duration histogram. With telemetry disabled
// the global providers are no-ops, so the methods cost next to nothing.
type Records struct {
	source  string
	tracer  trace.Tracer
	records metric.Int64Counter
	retries metric.Int64Counter
	dur     metric.Float64Histogram
}

// NewRecords creates instruments tagged with the given source system.
func NewRecords(source string) *Records {
	m := Meter(recordsScopeName)
	records, _ := m.Int64Counter("chmigrate.records",
		metric.WithDescription("Records processed, by outcome"),
	)
	retries, _ := m.Int64Counter("chmigrate.retries",
		metric.WithDescription("Rate-limited attempts that were retried"),
	)
	dur, _ := m.Float64Histogram("chmigrate.task.duration_ms",
		metric.WithDescription("Record task duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &Records{
		source:  source,
		tracer:  Tracer(recordsScopeName),
		records: records,
		retries: retries,
		dur:     dur,
	}
}

// Start opens the span of one record.
func (r *Records) Start(ctx context.Context, op, record string) (context.Context, trace.Span, time.Time) {
	ctx, span := r.tracer.Start(ctx, r.source+"."+op,
		trace.WithAttributes(
			attribute.String("chmigrate.source", r.source),
			attribute.String("chmigrate.record", record),
		),
	)
	return ctx, span, time.Now()
}

// Retry counts one rate-limited attempt.
func (r *Records) Retry(ctx context.Context) {
	r.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("chmigrate.source", r.source)))
}

// Done ends the span and records the outcome and duration.
func (r *Records) Done(ctx context.Context, span trace.Span, start time.Time, outcome string, err error) {
	attrs := metric.WithAttributes(
		attribute.String("chmigrate.source", r.source),
		attribute.String("outcome", outcome),
	)
	r.records.Add(ctx, 1, attrs)
	r.dur.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
}
