package internaltelemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// rpcLatencyBuckets covers in-memory index calls, which mostly finish well
// under a millisecond, up to multi-second dumps of large trees.
var rpcLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000, 5000}

// GrpcServerMetrics holds the instruments recorded by the index service's
// unary interceptor.
type GrpcServerMetrics struct {
	RpcsStartedCounter      metric.Int64Counter
	RpcsHandledCounter      metric.Int64Counter
	RpcsThrottledCounter    metric.Int64Counter
	RpcLatencyHistogram     metric.Float64Histogram
	ActiveRpcsUpDownCounter metric.Int64UpDownCounter
}

// NewGrpcServerMetrics creates the gRPC server instruments on meter.
func NewGrpcServerMetrics(meter metric.Meter) (*GrpcServerMetrics, error) {
	m := &GrpcServerMetrics{}
	var err error
	counters := []struct {
		dst         *metric.Int64Counter
		name, descr string
	}{
		{&m.RpcsStartedCounter, "idxtree.grpc.server.started", "RPCs received, including throttled ones."},
		{&m.RpcsHandledCounter, "idxtree.grpc.server.handled", "RPCs completed, by method and status code."},
		{&m.RpcsThrottledCounter, "idxtree.grpc.server.throttled", "RPCs rejected by the rate limiter."},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.descr), metric.WithUnit("1")); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", c.name, err)
		}
	}

	m.RpcLatencyHistogram, err = meter.Float64Histogram(
		"idxtree.grpc.server.duration",
		metric.WithDescription("Handler latency of completed RPCs."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(rpcLatencyBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create idxtree.grpc.server.duration: %w", err)
	}

	m.ActiveRpcsUpDownCounter, err = meter.Int64UpDownCounter(
		"idxtree.grpc.server.active_rpcs",
		metric.WithDescription("RPCs currently being handled."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create idxtree.grpc.server.active_rpcs: %w", err)
	}
	return m, nil
}
