// Package imcnet moves IMC packets over UDP. A Node announces itself,
// discovers peers through their announces and hands decoded messages to
// registered consumers.
package imcnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
	"github.com/signalsfoundry/imc-missions/internal/logging"
	"github.com/signalsfoundry/imc-missions/internal/observability"
	"github.com/signalsfoundry/imc-missions/kb"
	"github.com/signalsfoundry/imc-missions/model"
	"github.com/signalsfoundry/imc-missions/timectrl"
)

var (
	// ErrNoPeers is returned by Dispatch when no reachable system is known.
	ErrNoPeers = errors.New("imcnet: no known peers")
	// ErrNotListening is returned when sending before Listen.
	ErrNotListening = errors.New("imcnet: node is not listening")
	// ErrUnreachable is returned when a system advertised no UDP service.
	ErrUnreachable = errors.New("imcnet: system has no udp endpoint")
)

const maxDatagram = 65535

// Envelope is a decoded inbound message with its origin.
type Envelope struct {
	Header  imc.Header
	Message imc.Message
	Source  model.System // zero except ID when the sender is unknown
	Addr    *net.UDPAddr
}

// SourceName is the announced name of the sender, or its address in hex.
func (e Envelope) SourceName() string {
	if e.Source.Name != "" {
		return e.Source.Name
	}
	return fmt.Sprintf("0x%04X", e.Header.Src)
}

// Handler consumes inbound messages. Handlers run on the receive goroutine.
type Handler func(ctx context.Context, env Envelope)

// Option customises a Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(l logging.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.log = l
		}
	}
}

// WithMetrics records traffic in the provided collector.
func WithMetrics(c *observability.IMCCollector) Option {
	return func(n *Node) { n.metrics = c }
}

// WithKnowledgeBase shares an existing system table.
func WithKnowledgeBase(k *kb.KnowledgeBase) Option {
	return func(n *Node) {
		if k != nil {
			n.kb = k
		}
	}
}

// Node is an IMC endpoint bound to a UDP socket.
type Node struct {
	cfg     Config
	log     logging.Logger
	metrics *observability.IMCCollector
	kb      *kb.KnowledgeBase
	sched   *timectrl.Scheduler

	mu       sync.Mutex
	conn     *net.UDPConn
	mcast    *net.UDPConn
	peers    []*net.UDPAddr
	handlers []Handler
}

// NewNode constructs a node. Call Listen or Run to bind the socket.
func NewNode(cfg Config, opts ...Option) *Node {
	cfg.ApplyDefaults()
	n := &Node{
		cfg:   cfg,
		log:   logging.Noop(),
		sched: timectrl.NewScheduler(50*time.Millisecond, nil),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.kb == nil {
		n.kb = kb.NewKnowledgeBase(cfg.PeerTTL, 0)
	}
	n.log = n.log.With(logging.String("system", cfg.Name))
	n.kb.Subscribe(func(ev kb.Event) {
		switch ev.Type {
		case kb.EventSystemAdded:
			n.log.Info(context.Background(), "system discovered",
				logging.String("name", ev.System.Name),
				logging.String("addr", ev.System.Addr),
				logging.Any("id", ev.System.ID))
		case kb.EventSystemLost:
			n.log.Info(context.Background(), "system lost", logging.String("name", ev.System.Name))
		}
	})
	return n
}

// Config returns the node configuration with defaults applied.
func (n *Node) Config() Config { return n.cfg }

// KnowledgeBase returns the discovered system table.
func (n *Node) KnowledgeBase() *kb.KnowledgeBase { return n.kb }

// Every schedules fn on the node's loop. It may be called before or after Run.
func (n *Node) Every(interval time.Duration, name string, fn func(context.Context, time.Time)) {
	n.sched.Every(interval, name, fn)
}

// Consume registers a handler for every inbound message.
func (n *Node) Consume(h Handler) {
	if h == nil {
		return
	}
	n.mu.Lock()
	n.handlers = append(n.handlers, h)
	n.mu.Unlock()
}

// Listen binds the unicast socket and, when enabled, the first free
// multicast discovery port. Static peers are resolved here.
func (n *Node) Listen() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		return nil
	}

	laddr, err := net.ResolveUDPAddr("udp4", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve listen address %q: %w", n.cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.cfg.ListenAddr, err)
	}
	for _, p := range n.cfg.StaticPeers {
		addr, err := net.ResolveUDPAddr("udp4", p)
		if err != nil {
			conn.Close()
			return fmt.Errorf("resolve static peer %q: %w", p, err)
		}
		n.peers = append(n.peers, addr)
	}
	n.conn = conn

	if n.cfg.Multicast {
		group := net.ParseIP(n.cfg.MulticastGroup)
		for port := n.cfg.MulticastPortLow; port <= n.cfg.MulticastPortHigh; port++ {
			mc, err := net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: group, Port: port})
			if err == nil {
				n.mcast = mc
				break
			}
		}
		if n.mcast == nil {
			n.log.Warn(context.Background(), "no multicast discovery port available",
				logging.String("group", n.cfg.MulticastGroup))
		}
	}
	return nil
}

// Addr returns the bound unicast address, or nil before Listen.
func (n *Node) Addr() *net.UDPAddr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	return n.conn.LocalAddr().(*net.UDPAddr)
}

// AddPeer adds a static announce destination at runtime.
func (n *Node) AddPeer(hostport string) error {
	addr, err := net.ResolveUDPAddr("udp4", hostport)
	if err != nil {
		return fmt.Errorf("resolve peer %q: %w", hostport, err)
	}
	n.mu.Lock()
	n.peers = append(n.peers, addr)
	n.mu.Unlock()
	return nil
}

// Run serves until ctx is cancelled: it receives packets, announces the
// node and sends heartbeats to known peers.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Listen(); err != nil {
		return err
	}
	n.mu.Lock()
	conn, mcast := n.conn, n.mcast
	n.mu.Unlock()

	n.sched.Every(n.cfg.AnnounceInterval, "announce", func(ctx context.Context, _ time.Time) { n.announce(ctx) })
	n.sched.Every(n.cfg.HeartbeatInterval, "heartbeat", func(ctx context.Context, _ time.Time) { n.heartbeat(ctx) })

	n.log.Info(ctx, "imc node listening",
		logging.String("addr", conn.LocalAddr().String()),
		logging.Any("id", n.cfg.ID),
		logging.Any("multicast", mcast != nil))
	n.announce(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.readLoop(gctx, conn) })
	if mcast != nil {
		g.Go(func() error { return n.readLoop(gctx, mcast) })
	}
	g.Go(func() error {
		err := n.sched.Run(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		n.Close()
		return nil
	})
	return g.Wait()
}

// Close releases the sockets.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var errs []error
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
		n.conn = nil
	}
	if n.mcast != nil {
		errs = append(errs, n.mcast.Close())
		n.mcast = nil
	}
	return errors.Join(errs...)
}

func (n *Node) readLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, maxDatagram)
	for {
		sz, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		n.handlePacket(ctx, buf[:sz], from)
	}
}

func (n *Node) handlePacket(ctx context.Context, b []byte, from *net.UDPAddr) {
	h, msg, err := imc.Decode(b)
	if err != nil {
		n.metrics.IncDecodeErrors()
		n.log.Debug(ctx, "dropping undecodable datagram",
			logging.String("from", from.String()), logging.Err(err))
		return
	}
	if h.Src == n.cfg.ID {
		return
	}
	n.metrics.ObserveReceive(msg.Abbrev())

	switch m := msg.(type) {
	case *imc.Announce:
		sys := model.System{
			ID:       h.Src,
			Name:     m.SysName,
			Type:     m.SysType,
			Services: m.ServiceList(),
		}
		sys.Addr = UDPEndpoint(sys.Services)
		if m.Lat != 0 || m.Lon != 0 {
			sys.Position = geo.Geo{Lat: geo.Rad(m.Lat), Lon: geo.Rad(m.Lon)}
			sys.Depth = -float64(m.Height)
			sys.HasPosition = true
		}
		n.kb.Upsert(sys)
	case *imc.EstimatedState:
		lat, lon, depth := geo.Displace(geo.Rad(m.Lat).Degrees(), geo.Rad(m.Lon).Degrees(), 0,
			float64(m.X), float64(m.Y), float64(m.Z))
		if m.Depth >= 0 {
			depth = float64(m.Depth)
		}
		_ = n.kb.UpdatePosition(h.Src, geo.FromDegrees(lat, lon), depth)
	default:
		if _, ok := n.kb.Get(h.Src); ok {
			n.kb.Upsert(model.System{ID: h.Src})
		}
	}
	n.metrics.SetKnownPeers(n.kb.Len())

	src, ok := n.kb.Get(h.Src)
	if !ok {
		src = model.System{ID: h.Src}
	}
	env := Envelope{Header: h, Message: msg, Source: src, Addr: from}

	n.mu.Lock()
	handlers := append([]Handler(nil), n.handlers...)
	n.mu.Unlock()
	for _, fn := range handlers {
		fn(ctx, env)
	}
}

// AnnounceMessage builds the Announce this node would send now.
func (n *Node) AnnounceMessage() *imc.Announce {
	a := &imc.Announce{
		SysName: n.cfg.Name,
		SysType: n.cfg.Type,
		Owner:   imc.BroadcastAddress,
	}
	if addr := n.Addr(); addr != nil {
		a.Services = ServiceURL(advertiseHost(n.cfg.AdvertiseHost, addr), addr.Port)
	}
	return a
}

func (n *Node) announce(ctx context.Context) {
	n.mu.Lock()
	targets := append([]*net.UDPAddr(nil), n.peers...)
	multicast := n.cfg.Multicast
	n.mu.Unlock()

	if multicast {
		group := net.ParseIP(n.cfg.MulticastGroup)
		for port := n.cfg.MulticastPortLow; port <= n.cfg.MulticastPortHigh; port++ {
			targets = append(targets, &net.UDPAddr{IP: group, Port: port})
		}
	}
	msg := n.AnnounceMessage()
	for _, addr := range targets {
		if err := n.write(ctx, addr, imc.BroadcastAddress, msg); err != nil {
			n.log.Debug(ctx, "announce failed", logging.String("to", addr.String()), logging.Err(err))
		}
	}
}

func (n *Node) heartbeat(ctx context.Context) {
	n.kb.Flush()
	peers := n.kb.List()
	n.metrics.SetKnownPeers(len(peers))
	for _, sys := range peers {
		if err := n.SendTo(ctx, sys, &imc.Heartbeat{}); err != nil && !errors.Is(err, ErrUnreachable) {
			n.log.Debug(ctx, "heartbeat failed", logging.String("to", sys.Name), logging.Err(err))
		}
	}
}

// SendTo sends msg to one system. It is a single best-effort attempt.
func (n *Node) SendTo(ctx context.Context, sys model.System, msg imc.Message) error {
	if !sys.Reachable() {
		return fmt.Errorf("send %s to %s: %w", msg.Abbrev(), sys.Name, ErrUnreachable)
	}
	addr, err := net.ResolveUDPAddr("udp4", sys.Addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", sys.Addr, err)
	}
	return n.write(ctx, addr, sys.ID, msg)
}

// Dispatch sends msg to every reachable known system and returns the joined
// send errors.
func (n *Node) Dispatch(ctx context.Context, msg imc.Message) error {
	ctx, span := observability.Tracer("").Start(ctx, "imcnet.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("imc.abbrev", msg.Abbrev()))

	var errs []error
	sent := 0
	for _, sys := range n.kb.List() {
		if !sys.Reachable() || sys.ID == n.cfg.ID {
			continue
		}
		if err := n.SendTo(ctx, sys, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	span.SetAttributes(attribute.Int("imc.recipients", sent))
	if sent == 0 && len(errs) == 0 {
		span.SetStatus(codes.Error, ErrNoPeers.Error())
		return ErrNoPeers
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return err
	}
	return nil
}

// WaitForPeer blocks until a system named name is known (any system when
// name is empty) or ctx ends.
func (n *Node) WaitForPeer(ctx context.Context, name string) (model.System, error) {
	found := make(chan model.System, 1)
	match := func(s model.System) bool {
		return s.Reachable() && s.ID != n.cfg.ID && (name == "" || s.Name == name)
	}
	unsubscribe := n.kb.Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventSystemLost && match(ev.System) {
			select {
			case found <- ev.System:
			default:
			}
		}
	})
	defer unsubscribe()

	for _, s := range n.kb.List() {
		if match(s) {
			return s, nil
		}
	}
	select {
	case s := <-found:
		return s, nil
	case <-ctx.Done():
		if name == "" {
			return model.System{}, fmt.Errorf("wait for peer: %w", ctx.Err())
		}
		return model.System{}, fmt.Errorf("wait for %s: %w", name, ctx.Err())
	}
}

func (n *Node) write(ctx context.Context, addr *net.UDPAddr, dst uint16, msg imc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return ErrNotListening
	}

	start := time.Now()
	b, err := imc.Encode(imc.Header{
		Timestamp: float64(start.UnixNano()) / 1e9,
		Src:       n.cfg.ID,
		SrcEnt:    imc.AnyEntity,
		Dst:       dst,
		DstEnt:    imc.AnyEntity,
	}, msg)
	if err == nil {
		_, err = conn.WriteToUDP(b, addr)
	}
	n.metrics.ObserveSend(msg.Abbrev(), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Abbrev(), addr, err)
	}
	return nil
}
