package api

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/duskbridge/strata/pkg/metrics"
)

// metricsInterceptor records RPCRequestsTotal and RPCRequestDuration for
// every unary call, labeled by the bare method name (e.g. "KeyValue").
func metricsInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	method := methodName(info.FullMethod)
	start := time.Now()

	resp, err := handler(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	metrics.RPCRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	return resp, err
}

// streamMetricsInterceptor is metricsInterceptor's counterpart for
// PrefixValue and Watch: duration covers the whole stream lifetime, not a
// single request/response.
func streamMetricsInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	method := methodName(info.FullMethod)
	start := time.Now()

	err := handler(srv, ss)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	metrics.RPCRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	return err
}

// methodName extracts the bare method name from a gRPC FullMethod string
// (e.g. "/strata.Query/KeyValue" -> "KeyValue").
func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}
