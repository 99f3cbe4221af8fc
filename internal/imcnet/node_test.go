package imcnet

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
	"github.com/signalsfoundry/imc-missions/internal/observability"
	"github.com/signalsfoundry/imc-missions/model"
)

func loopbackConfig(name string, id uint16) Config {
	return Config{
		Name:              name,
		ID:                id,
		Type:              imc.SystemCCU,
		ListenAddr:        "127.0.0.1:0",
		AdvertiseHost:     "127.0.0.1",
		AnnounceInterval:  50 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
	}
}

// startPair runs two nodes that announce to each other over loopback.
func startPair(t *testing.T, opts ...Option) (*Node, *Node) {
	t.Helper()
	a := NewNode(loopbackConfig("alpha", 0x4001), opts...)
	b := NewNode(loopbackConfig("bravo", 0x4002))
	for _, n := range []*Node{a, b} {
		if err := n.Listen(); err != nil {
			t.Fatalf("Listen() error = %v", err)
		}
	}
	if err := a.AddPeer(b.Addr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := b.AddPeer(a.Addr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, n := range []*Node{a, b} {
		wg.Add(1)
		go func(n *Node) {
			defer wg.Done()
			if err := n.Run(ctx); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}(n)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return a, b
}

func TestNodesDiscoverEachOther(t *testing.T) {
	a, b := startPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	peer, err := a.WaitForPeer(ctx, "bravo")
	if err != nil {
		t.Fatalf("WaitForPeer() error = %v", err)
	}
	if peer.ID != 0x4002 || peer.Addr != b.Addr().String() {
		t.Fatalf("peer = %+v, want id 0x4002 at %s", peer, b.Addr())
	}
	if peer.Type != imc.SystemCCU {
		t.Fatalf("peer.Type = %v, want CCU", peer.Type)
	}
	if _, err := b.WaitForPeer(ctx, ""); err != nil {
		t.Fatalf("WaitForPeer(any) error = %v", err)
	}
}

func TestDispatchDeliversToConsumers(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewIMCCollector(reg)
	if err != nil {
		t.Fatalf("NewIMCCollector: %v", err)
	}
	a, b := startPair(t, WithMetrics(metrics))

	got := make(chan Envelope, 16)
	b.Consume(func(_ context.Context, env Envelope) {
		if _, ok := env.Message.(*imc.PlanControl); ok {
			got <- env
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := a.WaitForPeer(ctx, "bravo"); err != nil {
		t.Fatalf("WaitForPeer() error = %v", err)
	}
	if _, err := b.WaitForPeer(ctx, "alpha"); err != nil {
		t.Fatalf("WaitForPeer() error = %v", err)
	}

	pc := &imc.PlanControl{Type: imc.PlanControlRequest, Op: imc.PlanControlStart, RequestID: 7, PlanID: "p"}
	if err := a.Dispatch(ctx, pc); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	select {
	case env := <-got:
		if env.SourceName() != "alpha" {
			t.Fatalf("SourceName() = %q, want alpha", env.SourceName())
		}
		if env.Header.Dst != 0x4002 {
			t.Fatalf("Header.Dst = %#x, want 0x4002", env.Header.Dst)
		}
		if m := env.Message.(*imc.PlanControl); m.RequestID != 7 || m.PlanID != "p" {
			t.Fatalf("PlanControl = %+v", m)
		}
	case <-ctx.Done():
		t.Fatalf("PlanControl not delivered")
	}

	if sent := testutil.ToFloat64(metrics.MessagesSent.WithLabelValues("PlanControl")); sent != 1 {
		t.Fatalf("imc_messages_sent_total{PlanControl} = %v, want 1", sent)
	}
}

func TestDispatchWithoutPeers(t *testing.T) {
	n := NewNode(loopbackConfig("lonely", 0x4003))
	if err := n.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer n.Close()

	if err := n.Dispatch(context.Background(), &imc.Abort{}); !errors.Is(err, ErrNoPeers) {
		t.Fatalf("Dispatch() error = %v, want ErrNoPeers", err)
	}
}

func TestWaitForPeerTimesOut(t *testing.T) {
	n := NewNode(loopbackConfig("lonely", 0x4003))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := n.WaitForPeer(ctx, "nobody"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitForPeer() error = %v, want deadline exceeded", err)
	}
}

func TestSendToRequiresEndpoint(t *testing.T) {
	n := NewNode(loopbackConfig("x", 1))
	err := n.SendTo(context.Background(), model.System{ID: 2, Name: "mute"}, &imc.Heartbeat{})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("SendTo() error = %v, want ErrUnreachable", err)
	}
	err = n.SendTo(context.Background(), model.System{ID: 2, Addr: "127.0.0.1:9"}, &imc.Heartbeat{})
	if !errors.Is(err, ErrNotListening) {
		t.Fatalf("SendTo() error = %v, want ErrNotListening", err)
	}
}

func TestHandlePacketUpdatesKnowledgeBase(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, _ := observability.NewIMCCollector(reg)
	n := NewNode(loopbackConfig("x", 1), WithMetrics(metrics))
	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7000}

	ann := &imc.Announce{
		SysName:  "lauv-noptilus-1",
		SysType:  imc.SystemUUV,
		Lat:      geo.APDL.Lat.Radians(),
		Lon:      geo.APDL.Lon.Radians(),
		Services: "dune://0.0.0.0/uid/1;" + ServiceURL("10.0.0.5", 6002),
	}
	b, err := imc.Encode(imc.Header{Src: 0x22}, ann)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n.handlePacket(context.Background(), b, from)

	sys, ok := n.KnowledgeBase().Get(0x22)
	if !ok {
		t.Fatalf("system not recorded")
	}
	if sys.Addr != "10.0.0.5:6002" || !sys.HasPosition {
		t.Fatalf("system = %+v", sys)
	}

	es := &imc.EstimatedState{Lat: geo.APDL.Lat.Radians(), Lon: geo.APDL.Lon.Radians(), X: 100, Depth: 4}
	b, _ = imc.Encode(imc.Header{Src: 0x22}, es)
	n.handlePacket(context.Background(), b, from)
	sys, _ = n.KnowledgeBase().Get(0x22)
	if d := geo.APDL.Distance(sys.Position); d < 99 || d > 101 {
		t.Fatalf("distance from APDL = %v, want ~100", d)
	}
	if sys.Depth != 4 {
		t.Fatalf("Depth = %v, want 4", sys.Depth)
	}

	n.handlePacket(context.Background(), []byte{1, 2, 3}, from)
	if got := testutil.ToFloat64(metrics.DecodeErrors); got != 1 {
		t.Fatalf("imc_decode_errors_total = %v, want 1", got)
	}
}

func TestUDPEndpoint(t *testing.T) {
	cases := []struct {
		services []string
		want     string
	}{
		{[]string{"imc+udp://192.168.1.4:6002/"}, "192.168.1.4:6002"},
		{[]string{"dune://x/", "imc+tcp://1.2.3.4:80/", "imc+udp://1.2.3.4:6001/"}, "1.2.3.4:6001"},
		{[]string{"imc+udp://noport/"}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := UDPEndpoint(tc.services); got != tc.want {
			t.Fatalf("UDPEndpoint(%v) = %q, want %q", tc.services, got, tc.want)
		}
	}
	if got := ServiceURL("127.0.0.1", 7010); got != "imc+udp://127.0.0.1:7010/" {
		t.Fatalf("ServiceURL() = %q", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.ListenAddr != DefaultListenAddr || cfg.MulticastGroup != DefaultMulticastGroup {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.MulticastPortLow != 30100 || cfg.MulticastPortHigh != 30104 {
		t.Fatalf("multicast ports = %d-%d, want 30100-30104", cfg.MulticastPortLow, cfg.MulticastPortHigh)
	}
	if cfg.HeartbeatInterval != time.Second {
		t.Fatalf("HeartbeatInterval = %v, want 1s", cfg.HeartbeatInterval)
	}
}
