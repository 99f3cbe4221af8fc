package agent

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/imc-missions/internal/logging"
)

func TestRequestIDInterceptorUsesMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDHeader, "req-42"))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	var gotID string
	var gotLogger logging.Logger
	_, err := RequestIDUnaryServerInterceptor(logging.Noop())(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		gotID = logging.RequestIDFromContext(ctx)
		gotLogger = logging.LoggerFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error = %v", err)
	}
	if gotID != "req-42" {
		t.Fatalf("request id = %q, want req-42", gotID)
	}
	if gotLogger == nil {
		t.Fatalf("no logger on the handler context")
	}
}

func TestRequestIDInterceptorGeneratesID(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	var gotID string
	_, _ = RequestIDUnaryServerInterceptor(nil)(context.Background(), nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		gotID = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if gotID == "" {
		t.Fatalf("request id was not generated")
	}
}

func useInMemoryTracing(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestTracingInterceptorRecordsSpan(t *testing.T) {
	exp := useInMemoryTracing(t)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	ctx := logging.ContextWithRequestID(context.Background(), "req-7")
	boom := errors.New("boom")
	_, err := TracingUnaryServerInterceptor()(ctx, nil, info, func(context.Context, interface{}) (interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("interceptor error = %v, want boom", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "rpc/Health/Check" {
		t.Fatalf("span name = %q", span.Name)
	}
	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["rpc.method"] != "Check" || attrs["request_id"] != "req-7" {
		t.Fatalf("span attributes = %v", attrs)
	}
	if len(span.Events) == 0 {
		t.Fatalf("error was not recorded on the span")
	}
}

func TestGRPCServerEmitsOneServerSpan(t *testing.T) {
	exp := useInMemoryTracing(t)

	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go a.grpc.Serve(lis)
	defer a.grpc.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, requestIDHeader, "req-9")
	if _, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{}); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	// The stats handler ends the span after the response is written.
	deadline := time.Now().Add(2 * time.Second)
	for len(exp.GetSpans()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	var server []tracetest.SpanStub
	for _, s := range exp.GetSpans() {
		if s.SpanKind == trace.SpanKindServer {
			server = append(server, s)
		}
	}
	if len(server) != 1 {
		t.Fatalf("recorded %d server spans, want 1: %+v", len(server), server)
	}
	span := server[0]
	if span.Name != "rpc/Health/Check" {
		t.Fatalf("span name = %q, want rpc/Health/Check", span.Name)
	}
	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["request_id"] != "req-9" || attrs["rpc.method"] != "Check" {
		t.Fatalf("span attributes = %v", attrs)
	}
}
