package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewIMCCollector(reg)
	if err != nil {
		t.Fatalf("NewIMCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("agent_grpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "agent_grpc_request_duration_seconds", map[string]string{
		"service": "Health",
		"method":  "Check",
	}); count != 1 {
		t.Fatalf("agent_grpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewIMCCollector(reg)
	if err != nil {
		t.Fatalf("NewIMCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("agent_grpc_requests_total error label = %v, want 1", got)
	}
}

func TestObserveSendAndReceive(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewIMCCollector(reg)
	if err != nil {
		t.Fatalf("NewIMCCollector: %v", err)
	}

	collector.ObserveSend("PlanControl", time.Millisecond, nil)
	collector.ObserveSend("PlanControl", time.Millisecond, errors.New("no route"))
	collector.ObserveReceive("Announce")
	collector.ObserveReceive("Announce")
	collector.IncDecodeErrors()
	collector.SetKnownPeers(2)

	if got := testutil.ToFloat64(collector.MessagesSent.WithLabelValues("PlanControl")); got != 1 {
		t.Fatalf("imc_messages_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SendFailures.WithLabelValues("PlanControl")); got != 1 {
		t.Fatalf("imc_send_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.MessagesReceived.WithLabelValues("Announce")); got != 2 {
		t.Fatalf("imc_messages_received_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.DecodeErrors); got != 1 {
		t.Fatalf("imc_decode_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.KnownPeers); got != 2 {
		t.Fatalf("imc_known_peers = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "imc_send_duration_seconds", nil); count != 1 {
		t.Fatalf("imc_send_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *IMCCollector
	c.ObserveSend("Goto", time.Millisecond, nil)
	c.ObserveReceive("Goto")
	c.IncDecodeErrors()
	c.SetKnownPeers(1)
	if c.Gatherer() != nil {
		t.Fatalf("Gatherer() on nil collector = non-nil")
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewIMCCollector(reg)
	if err != nil {
		t.Fatalf("NewIMCCollector: %v", err)
	}
	second, err := NewIMCCollector(reg)
	if err != nil {
		t.Fatalf("second NewIMCCollector: %v", err)
	}
	first.ObserveReceive("Heartbeat")
	if got := testutil.ToFloat64(second.MessagesReceived.WithLabelValues("Heartbeat")); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesIMCMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewIMCCollector(reg)
	if err != nil {
		t.Fatalf("NewIMCCollector: %v", err)
	}
	collector.SetKnownPeers(3)
	collector.ObserveSend("Goto", time.Millisecond, nil)
	collector.ObserveReceive("Heartbeat")
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"imc_messages_sent_total",
		"imc_messages_received_total",
		"imc_send_duration_seconds",
		"imc_known_peers 3",
		"agent_grpc_requests_total",
		"agent_grpc_request_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct{ in, service, method string }{
		{"/grpc.health.v1.Health/Check", "Health", "Check"},
		{"", "unknown", "unknown"},
		{"Check", "unknown", "unknown"},
	}
	for _, tc := range cases {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.method {
			t.Fatalf("SplitMethod(%q) = %q, %q, want %q, %q", tc.in, s, m, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
