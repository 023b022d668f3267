package indexservice

import (
	"context"
	"time"

	"github.com/google/uuid"
	internaltelemetry "github.com/sushant-115/idxtree/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries the id assigned to each call.
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// RequestID returns the id the interceptor attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// UnaryInterceptor logs every call, tags it with a request id, records the
// gRPC server metrics and rejects calls once limiter runs dry. limiter and
// metrics may be nil.
func UnaryInterceptor(logger *zap.Logger, limiter *rate.Limiter, metrics *internaltelemetry.GrpcServerMetrics) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := incomingRequestID(ctx)
		ctx = context.WithValue(ctx, requestIDKey{}, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		attrs := metric.WithAttributes(attribute.String("rpc.method", info.FullMethod))
		if metrics != nil {
			metrics.RpcsStartedCounter.Add(ctx, 1, attrs)
		}

		if limiter != nil && !limiter.Allow() {
			if metrics != nil {
				metrics.RpcsThrottledCounter.Add(ctx, 1, attrs)
			}
			logger.Warn("Request throttled", zap.String("method", info.FullMethod), zap.String("request_id", id))
			return nil, status.Error(codes.ResourceExhausted, "request rate limit exceeded")
		}

		if metrics != nil {
			metrics.ActiveRpcsUpDownCounter.Add(ctx, 1, attrs)
			defer metrics.ActiveRpcsUpDownCounter.Add(ctx, -1, attrs)
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)
		code := status.Code(err)

		if metrics != nil {
			done := metric.WithAttributes(
				attribute.String("rpc.method", info.FullMethod),
				attribute.String("rpc.grpc.status_code", code.String()),
			)
			metrics.RpcsHandledCounter.Add(ctx, 1, done)
			metrics.RpcLatencyHistogram.Record(ctx, float64(elapsed.Microseconds())/1000, done)
		}

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("request_id", id),
			zap.String("code", code.String()),
			zap.Duration("duration", elapsed),
		}
		switch code {
		case codes.OK, codes.NotFound, codes.AlreadyExists, codes.InvalidArgument:
			logger.Debug("Request handled", fields...)
		default:
			logger.Error("Request failed", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

// incomingRequestID reuses a caller-supplied id or mints a new one.
func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.New().String()
}
