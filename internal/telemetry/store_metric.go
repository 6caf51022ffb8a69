package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// StoreMetrics holds the metric instruments recorded around every heap and
// index operation.
type StoreMetrics struct {
	OpsStartedCounter      metric.Int64Counter
	OpsHandledCounter      metric.Int64Counter
	OpLatencyHistogram     metric.Int64Histogram
	ActiveOpsUpDownCounter metric.Int64UpDownCounter
	RecordsTouchedCounter  metric.Int64Counter
}

// NewStoreMetrics creates and registers the store instruments on meter.
func NewStoreMetrics(meter metric.Meter) (*StoreMetrics, error) {
	opsStartedCounter, err := meter.Int64Counter(
		"attackdb.store.started_total",
		metric.WithDescription("Total number of store operations started."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	opsHandledCounter, err := meter.Int64Counter(
		"attackdb.store.handled_total",
		metric.WithDescription("Total number of store operations completed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	opLatencyHistogram, err := meter.Int64Histogram(
		"attackdb.store.duration",
		metric.WithDescription("The latency of store operations."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	activeOpsUpDownCounter, err := meter.Int64UpDownCounter(
		"attackdb.store.active_ops",
		metric.WithDescription("Number of store operations in progress."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	recordsTouchedCounter, err := meter.Int64Counter(
		"attackdb.store.records_total",
		metric.WithDescription("Records returned, inserted, removed or rewritten."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{
		OpsStartedCounter:      opsStartedCounter,
		OpsHandledCounter:      opsHandledCounter,
		OpLatencyHistogram:     opLatencyHistogram,
		ActiveOpsUpDownCounter: activeOpsUpDownCounter,
		RecordsTouchedCounter:  recordsTouchedCounter,
	}, nil
}
