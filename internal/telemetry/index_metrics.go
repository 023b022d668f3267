package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// IndexMetrics holds the instruments recorded by the index manager.
type IndexMetrics struct {
	OperationsCounter  metric.Int64Counter
	OperationLatency   metric.Int64Histogram
	LookupsCounter     metric.Int64Counter
	SplitsCounter      metric.Int64Counter
	RecordsUpDown      metric.Int64UpDownCounter
	LiveIndexesUpDown  metric.Int64UpDownCounter
	CorruptionsCounter metric.Int64Counter
}

// NewIndexMetrics creates and registers the index instruments.
func NewIndexMetrics(meter metric.Meter) (*IndexMetrics, error) {
	operations, err := meter.Int64Counter(
		"idxtree.index.operations",
		metric.WithDescription("Index operations by name and outcome."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Int64Histogram(
		"idxtree.index.operation.duration",
		metric.WithDescription("Latency of index operations."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	lookups, err := meter.Int64Counter(
		"idxtree.index.lookups",
		metric.WithDescription("Record lookups by result (hit or miss)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	splits, err := meter.Int64Counter(
		"idxtree.index.page_splits",
		metric.WithDescription("Page splits performed while adding records."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	records, err := meter.Int64UpDownCounter(
		"idxtree.index.records",
		metric.WithDescription("Records held across all live indexes."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	live, err := meter.Int64UpDownCounter(
		"idxtree.index.live",
		metric.WithDescription("Number of live indexes."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	corruptions, err := meter.Int64Counter(
		"idxtree.index.corruptions",
		metric.WithDescription("Operations that found a broken tree invariant."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &IndexMetrics{
		OperationsCounter:  operations,
		OperationLatency:   latency,
		LookupsCounter:     lookups,
		SplitsCounter:      splits,
		RecordsUpDown:      records,
		LiveIndexesUpDown:  live,
		CorruptionsCounter: corruptions,
	}, nil
}
