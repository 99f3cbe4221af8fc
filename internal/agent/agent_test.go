package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
	"github.com/signalsfoundry/imc-missions/internal/imcnet"
	"github.com/signalsfoundry/imc-missions/mission"
	"github.com/signalsfoundry/imc-missions/model"
	"github.com/signalsfoundry/imc-missions/plan"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Name:             "test-agent",
		ListenAddr:       "127.0.0.1:0",
		AdvertiseHost:    "127.0.0.1",
		AnnounceInterval: 50 * time.Millisecond,
		PeriodicInterval: 20 * time.Millisecond,
		SendTimeout:      2 * time.Second,
		DisableMulticast: true,
		PlanDir:          t.TempDir(),
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.ApplyDefaults()
	if cfg.Name != DefaultName || cfg.ID != 0x4444 || cfg.Port != 7010 || cfg.Type != "UAV" {
		t.Fatalf("ApplyDefaults() identity = %+v", cfg)
	}
	if cfg.PeriodicInterval != 3*time.Second {
		t.Fatalf("PeriodicInterval = %v, want 3s", cfg.PeriodicInterval)
	}
	if cfg.SendTimeout != DefaultSendTimeout || cfg.AnnounceInterval != DefaultAnnounce {
		t.Fatalf("timeouts = %v/%v", cfg.SendTimeout, cfg.AnnounceInterval)
	}

	kept := Config{Name: "x", ID: 9, Port: 6001, Type: "CCU", PeriodicInterval: time.Second}.ApplyDefaults()
	if kept.Name != "x" || kept.ID != 9 || kept.Port != 6001 || kept.Type != "CCU" || kept.PeriodicInterval != time.Second {
		t.Fatalf("ApplyDefaults() overwrote explicit values: %+v", kept)
	}
}

func TestNewRejectsUnknownSystemType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Type = "submarine"
	if _, err := New(cfg); err == nil {
		t.Fatalf("New() accepted unknown system type")
	}
}

func TestConsumeLine(t *testing.T) {
	env := imcnet.Envelope{
		Header:  imc.Header{Src: 0x1F},
		Message: &imc.Heartbeat{},
		Source:  model.System{ID: 0x1F, Name: "lauv-xplore-2"},
	}
	if got := ConsumeLine(env); got != "Heartbeat from lauv-xplore-2" {
		t.Fatalf("ConsumeLine() = %q", got)
	}
	env.Source = model.System{ID: 0x1F}
	if got := ConsumeLine(env); got != "Heartbeat from 0x001F" {
		t.Fatalf("ConsumeLine() unknown source = %q", got)
	}
}

func TestSendWithoutPeersTimesOut(t *testing.T) {
	cfg := testConfig(t)
	cfg.SendTimeout = 50 * time.Millisecond
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	pc, err := a.SendPlanControl(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SendPlanControl() error = %v, want deadline exceeded", err)
	}
	if pc.RequestID != 1 {
		t.Fatalf("RequestID = %d, want 1", pc.RequestID)
	}
	if pc, _ = a.SendPlanControl(context.Background()); pc.RequestID != 2 {
		t.Fatalf("second RequestID = %d, want 2", pc.RequestID)
	}
}

func TestHTTPPlanEndpoints(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m, _ := mission.Tutorial(2)
	spec, err := mission.Spec(m)
	if err != nil {
		t.Fatalf("Spec() error = %v", err)
	}
	if _, err := a.Store().Save(spec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	rr := get("/plans")
	if rr.Code != http.StatusOK {
		t.Fatalf("/plans status = %d", rr.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0]["id"] != "tutorial-2" {
		t.Fatalf("/plans body = %s (err %v)", rr.Body.String(), err)
	}

	rr = get("/plans/tutorial-2")
	if rr.Code != http.StatusOK {
		t.Fatalf("/plans/tutorial-2 status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(strings.TrimSpace(body), `{
  "abbrev": "PlanSpecification"`) || !strings.Contains(body, `"Loiter"`) {
		t.Fatalf("/plans/tutorial-2 body = %s", body)
	}
	if rr.Header().Get(requestIDHeader) == "" {
		t.Fatalf("response missing %s header", requestIDHeader)
	}

	if rr = get("/plans/missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("/plans/missing status = %d, want 404", rr.Code)
	}
	if rr = get("/plans/bad..id"); rr.Code != http.StatusBadRequest {
		t.Fatalf("/plans/bad..id status = %d, want 400", rr.Code)
	}
	if rr = get("/healthz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/healthz without peers = %d, want 503", rr.Code)
	}
	if rr = get("/peers"); rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("/peers = %d %s", rr.Code, rr.Body.String())
	}
	if rr = get("/metrics"); rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rr.Code)
	}
}

// vehicle is a bare node standing in for a remote system.
func startVehicle(t *testing.T, a *Agent) (*imcnet.Node, <-chan *imc.PlanControl) {
	t.Helper()
	v := imcnet.NewNode(imcnet.Config{
		Name:             "lauv-test",
		ID:               0x0815,
		Type:             imc.SystemUUV,
		ListenAddr:       "127.0.0.1:0",
		AdvertiseHost:    "127.0.0.1",
		AnnounceInterval: 50 * time.Millisecond,
	})
	if err := v.Listen(); err != nil {
		t.Fatalf("vehicle Listen() error = %v", err)
	}
	if err := a.Node().Listen(); err != nil {
		t.Fatalf("agent Listen() error = %v", err)
	}
	if err := v.AddPeer(a.Node().Addr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := a.Node().AddPeer(v.Addr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	got := make(chan *imc.PlanControl, 4)
	v.Consume(func(_ context.Context, env imcnet.Envelope) {
		if pc, ok := env.Message.(*imc.PlanControl); ok {
			got <- pc
		}
	})
	return v, got
}

func TestSendPlanControlReachesVehicle(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var mu sync.Mutex
	var consumed []string
	a.Consume = func(_ context.Context, env imcnet.Envelope) {
		mu.Lock()
		consumed = append(consumed, ConsumeLine(env))
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	v, got := startVehicle(t, a)

	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{a.Run, v.Run} {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}(run)
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	pc, err := a.SendPlanControl(context.Background())
	if err != nil {
		t.Fatalf("SendPlanControl() error = %v", err)
	}

	select {
	case recv := <-got:
		if recv.RequestID != pc.RequestID || recv.Info != "Go to APDL" {
			t.Fatalf("received %+v", recv)
		}
		if recv.Type != imc.PlanControlRequest || recv.Op != imc.PlanControlStart || recv.Flags != imc.PlanControlCalibrate {
			t.Fatalf("received type/op/flags = %v/%v/%v", recv.Type, recv.Op, recv.Flags)
		}
		g, ok := recv.Arg.(*imc.Goto)
		if !ok {
			t.Fatalf("arg = %T, want *imc.Goto", recv.Arg)
		}
		want := geo.APDL.TranslatedBy(0, 150)
		if d := want.Distance(plan.Location(g)); d > 0.01 {
			t.Fatalf("goto is %v m from target", d)
		}
		if g.Z != 2 || g.ZUnits != imc.ZUnitsDepth || g.Speed != 1 || g.SpeedUnits != imc.SpeedUnitsMetersPS {
			t.Fatalf("goto = %+v", g)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("vehicle did not receive PlanControl")
	}

	if !a.Healthy() {
		t.Fatalf("Healthy() = false with a known peer")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		seen := false
		for _, line := range consumed {
			if line == "Announce from lauv-test" {
				seen = true
			}
		}
		mu.Unlock()
		if seen {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("consume callback never saw the vehicle announce: %v", consumed)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartPlanOverHTTP(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m, _ := mission.Tutorial(1)
	spec, _ := mission.Spec(m)
	if _, err := a.Store().Save(spec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	v, got := startVehicle(t, a)
	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{a.Run, v.Run} {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			_ = run(ctx)
		}(run)
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/plans/tutorial-1/start", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("POST start status = %d body %s", rr.Code, rr.Body.String())
	}

	select {
	case pc := <-got:
		if pc.Op != imc.PlanControlStart || pc.PlanID != "tutorial-1" {
			t.Fatalf("received %+v", pc)
		}
		if s, ok := pc.Arg.(*imc.PlanSpecification); !ok || len(s.Maneuvers) != 1 {
			t.Fatalf("arg = %#v", pc.Arg)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("vehicle did not receive start request")
	}
}

func TestGRPCHealthFollowsPeers(t *testing.T) {
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
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status without peers = %v, want NOT_SERVING", got)
	}
	a.Node().KnowledgeBase().Upsert(model.System{ID: 0x22, Name: "peer", Addr: "127.0.0.1:9"})
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status with a peer = %v, want SERVING", got)
	}
	a.Node().KnowledgeBase().Remove(0x22)
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after peer lost = %v, want NOT_SERVING", got)
	}
}
