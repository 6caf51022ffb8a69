package indexmanager

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StartMetricsAndTrace begins the telemetry recording for a store operation.
// It returns a new context, the trace span, and the start time.
func (m *Manager) StartMetricsAndTrace(ctx context.Context, method string) (context.Context, trace.Span, time.Time) {
	startTime := time.Now()

	attrs := metric.WithAttributes(
		attribute.String("store.service", m.serviceName),
		attribute.String("store.method", method),
	)
	m.metrics.ActiveOpsUpDownCounter.Add(ctx, 1, attrs)
	m.metrics.OpsStartedCounter.Add(ctx, 1, attrs)

	ctx, span := m.tracer.Start(ctx, method, trace.WithAttributes(
		attribute.String("store.service", m.serviceName),
		attribute.String("store.method", method),
	))
	return ctx, span, startTime
}

// EndMetricsAndTrace completes the telemetry recording for a store operation.
func (m *Manager) EndMetricsAndTrace(ctx context.Context, span trace.Span, startTime time.Time, method string, statusCode otelcodes.Code) {
	latency := time.Since(startTime).Milliseconds()

	if statusCode != otelcodes.Ok {
		span.SetStatus(otelcodes.Error, statusCode.String())
	} else {
		span.SetStatus(otelcodes.Ok, "Success")
	}
	span.End()

	m.metrics.ActiveOpsUpDownCounter.Add(ctx, -1, metric.WithAttributes(
		attribute.String("store.service", m.serviceName),
		attribute.String("store.method", method),
	))

	metricAttributes := attribute.NewSet(
		attribute.String("store.service", m.serviceName),
		attribute.String("store.method", method),
		attribute.String("store.code", statusCode.String()),
	)
	m.metrics.OpLatencyHistogram.Record(ctx, latency, metric.WithAttributeSet(metricAttributes))
	m.metrics.OpsHandledCounter.Add(ctx, 1, metric.WithAttributeSet(metricAttributes))
}

// finish records err on the span, counts touched records and ends the operation.
func (m *Manager) finish(ctx context.Context, span trace.Span, startTime time.Time, method string, records int, err error) {
	statusCode := otelcodes.Ok
	if err != nil {
		statusCode = otelcodes.Error
		span.RecordError(err)
	}
	if records > 0 && err == nil {
		m.metrics.RecordsTouchedCounter.Add(ctx, int64(records), metric.WithAttributes(
			attribute.String("store.service", m.serviceName),
			attribute.String("store.method", method),
		))
	}
	m.EndMetricsAndTrace(ctx, span, startTime, method, statusCode)
}
