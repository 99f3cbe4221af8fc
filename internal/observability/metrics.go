package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// IMCCollector bundles Prometheus metrics for the IMC transport and the
// agent's gRPC surface.
type IMCCollector struct {
	gatherer prometheus.Gatherer

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	DecodeErrors     prometheus.Counter
	SendFailures     *prometheus.CounterVec
	SendLatency      prometheus.Histogram
	KnownPeers       prometheus.Gauge

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewIMCCollector registers IMC Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewIMCCollector(reg prometheus.Registerer) (*IMCCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sent, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imc_messages_sent_total",
		Help: "IMC messages sent, labeled by message abbreviation.",
	}, []string{"abbrev"}), "imc_messages_sent_total")
	if err != nil {
		return nil, err
	}
	received, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imc_messages_received_total",
		Help: "IMC messages received and decoded, labeled by message abbreviation.",
	}, []string{"abbrev"}), "imc_messages_received_total")
	if err != nil {
		return nil, err
	}
	decodeErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imc_decode_errors_total",
		Help: "Datagrams that could not be decoded as IMC packets.",
	}), "imc_decode_errors_total")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imc_send_failures_total",
		Help: "IMC sends that failed, labeled by message abbreviation.",
	}, []string{"abbrev"}), "imc_send_failures_total")
	if err != nil {
		return nil, err
	}
	latency, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imc_send_duration_seconds",
		Help:    "Time spent encoding and writing a single IMC datagram.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}), "imc_send_duration_seconds")
	if err != nil {
		return nil, err
	}
	peers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imc_known_peers",
		Help: "Current number of IMC systems in the discovery table.",
	}), "imc_known_peers")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_grpc_requests_total",
		Help: "Total number of handled agent RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "agent_grpc_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_grpc_request_duration_seconds",
		Help:    "Agent RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "agent_grpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &IMCCollector{
		gatherer:         gatherer,
		MessagesSent:     sent,
		MessagesReceived: received,
		DecodeErrors:     decodeErrors,
		SendFailures:     failures,
		SendLatency:      latency,
		KnownPeers:       peers,
		RPCRequests:      requests,
		RPCDurations:     durations,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *IMCCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveSend records the outcome of one datagram write.
func (c *IMCCollector) ObserveSend(abbrev string, d time.Duration, err error) {
	if c == nil {
		return
	}
	if err != nil {
		if c.SendFailures != nil {
			c.SendFailures.WithLabelValues(abbrev).Inc()
		}
		return
	}
	if c.MessagesSent != nil {
		c.MessagesSent.WithLabelValues(abbrev).Inc()
	}
	if c.SendLatency != nil {
		c.SendLatency.Observe(d.Seconds())
	}
}

// ObserveReceive counts a decoded inbound message.
func (c *IMCCollector) ObserveReceive(abbrev string) {
	if c == nil || c.MessagesReceived == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(abbrev).Inc()
}

// IncDecodeErrors counts a datagram that failed to decode.
func (c *IMCCollector) IncDecodeErrors() {
	if c == nil || c.DecodeErrors == nil {
		return
	}
	c.DecodeErrors.Inc()
}

// SetKnownPeers updates the discovery table gauge.
func (c *IMCCollector) SetKnownPeers(n int) {
	if c == nil || c.KnownPeers == nil {
		return
	}
	c.KnownPeers.Set(float64(n))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *IMCCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *IMCCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds c to reg, returning the already registered collector of
// the same type when one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, vec, name)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, vec, name)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, hist, name)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, counter, name)
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, gauge, name)
}
