package agent

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/imc-missions/internal/logging"
	"github.com/signalsfoundry/imc-missions/internal/observability"
)

// requestIDHeader carries a caller-chosen request id on both surfaces.
const requestIDHeader = "x-request-id"

// RequestIDUnaryServerInterceptor puts a request_id on the context, taken
// from inbound metadata when present, together with a logger annotated with
// that id and the method.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(requestIDHeader); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithRequestID(ctx, vals[0])
			}
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		return handler(logging.ContextWithLogger(ctx, reqLog), req)
	}
}

// TracingUnaryServerInterceptor names the server span after the RPC and tags
// it with the method and request id. It opens its own span when no tracing
// stats handler has.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := observability.Tracer("")
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := "rpc/" + service + "/" + method

		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(name)
		}

		span.SetAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("rpc.full_method", strings.TrimPrefix(info.FullMethod, "/")),
		)
		if id := logging.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		return resp, err
	}
}

// requestLogger is the gin counterpart: it tags the request context and
// logs each request once it completes.
func requestLogger(base logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(requestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("path", c.FullPath())))
		c.Request = c.Request.WithContext(logging.ContextWithLogger(ctx, reqLog))
		c.Header(requestIDHeader, logging.RequestIDFromContext(ctx))

		start := time.Now()
		c.Next()
		reqLog.Debug(ctx, "http request",
			logging.String("method", c.Request.Method),
			logging.Int("status", c.Writer.Status()),
			logging.Any("duration", time.Since(start)))
	}
}

func loggerFrom(ctx context.Context, fallback logging.Logger) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return fallback
}
