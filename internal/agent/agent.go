package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
	"github.com/signalsfoundry/imc-missions/internal/imcnet"
	"github.com/signalsfoundry/imc-missions/internal/logging"
	"github.com/signalsfoundry/imc-missions/internal/observability"
	"github.com/signalsfoundry/imc-missions/internal/planstore"
	"github.com/signalsfoundry/imc-missions/kb"
	"github.com/signalsfoundry/imc-missions/plan"
)

// HealthService is the service name reported by the gRPC health server in
// addition to the overall ("") status.
const HealthService = "imc.Agent"

// Agent is an IMC participant with periodic and consume callbacks.
type Agent struct {
	cfg     Config
	sysType imc.SystemType
	log     logging.Logger
	metrics *observability.IMCCollector
	store   *planstore.Store

	node   *imcnet.Node
	health *health.Server
	grpc   *grpc.Server
	router http.Handler

	reqID atomic.Uint32

	// Periodic and Consume replace the default callbacks when set before Run.
	Periodic func(ctx context.Context, now time.Time)
	Consume  func(ctx context.Context, env imcnet.Envelope)
}

// Option customises an Agent.
type Option func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics records traffic and RPCs in c.
func WithMetrics(c *observability.IMCCollector) Option {
	return func(a *Agent) { a.metrics = c }
}

// WithStore serves plans from an already opened archive.
func WithStore(s *planstore.Store) Option {
	return func(a *Agent) { a.store = s }
}

// New builds an agent. Sockets are not opened until Run.
func New(cfg Config, opts ...Option) (*Agent, error) {
	cfg = cfg.ApplyDefaults()
	sysType, err := imc.ParseSystemType(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("agent config: %w", err)
	}

	a := &Agent{cfg: cfg, sysType: sysType, log: logging.Noop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.store == nil && cfg.PlanDir != "" {
		if a.store, err = planstore.Open(cfg.PlanDir, 0); err != nil {
			return nil, err
		}
	}

	listen := cfg.ListenAddr
	if listen == "" {
		listen = net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port))
	}
	a.node = imcnet.NewNode(imcnet.Config{
		Name:             cfg.Name,
		ID:               cfg.ID,
		Type:             sysType,
		ListenAddr:       listen,
		AdvertiseHost:    cfg.AdvertiseHost,
		AnnounceInterval: cfg.AnnounceInterval,
		Multicast:        !cfg.DisableMulticast,
		StaticPeers:      cfg.StaticPeers,
	},
		imcnet.WithLogger(a.log),
		imcnet.WithMetrics(a.metrics),
	)
	a.node.Consume(a.consume)
	a.node.Every(cfg.PeriodicInterval, "periodic", a.periodic)

	a.health = health.NewServer()
	a.updateHealth()
	a.node.KnowledgeBase().Subscribe(func(kb.Event) { a.updateHealth() })

	a.grpc = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(a.log),
			TracingUnaryServerInterceptor(),
			a.metrics.UnaryServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(a.grpc, a.health)
	a.router = a.newRouter()
	return a, nil
}

// Config returns the effective configuration.
func (a *Agent) Config() Config { return a.cfg }

// Node exposes the underlying IMC node.
func (a *Agent) Node() *imcnet.Node { return a.node }

// Store returns the plan archive, or nil when disabled.
func (a *Agent) Store() *planstore.Store { return a.store }

// Handler returns the HTTP inspection handler.
func (a *Agent) Handler() http.Handler { return a.router }

func (a *Agent) periodic(ctx context.Context, now time.Time) {
	if a.Periodic != nil {
		a.Periodic(ctx, now)
		return
	}
	a.log.Info(ctx, fmt.Sprintf("%s have passed", a.cfg.PeriodicInterval),
		logging.Int("peers", a.node.KnowledgeBase().Len()))
}

func (a *Agent) consume(ctx context.Context, env imcnet.Envelope) {
	if a.Consume != nil {
		a.Consume(ctx, env)
		return
	}
	a.log.Info(ctx, ConsumeLine(env))
}

// ConsumeLine formats an inbound message the way the default consume
// callback logs it.
func ConsumeLine(env imcnet.Envelope) string {
	return fmt.Sprintf("%s from %s", env.Message.Abbrev(), env.SourceName())
}

func (a *Agent) updateHealth() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if a.node.KnowledgeBase().Len() > 0 {
		status = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus("", status)
	a.health.SetServingStatus(HealthService, status)
}

// Healthy reports whether at least one peer is known.
func (a *Agent) Healthy() bool {
	return a.node.KnowledgeBase().Len() > 0
}

func (a *Agent) nextRequestID() uint16 {
	return uint16(a.reqID.Add(1))
}

// send waits up to SendTimeout for any peer then dispatches msg once.
func (a *Agent) send(ctx context.Context, msg imc.Message) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.SendTimeout)
	defer cancel()

	ctx, span := observability.Tracer("").Start(ctx, "agent.send")
	defer span.End()
	span.SetAttributes(attribute.String("imc.abbrev", msg.Abbrev()))

	if _, err := a.node.WaitForPeer(ctx, ""); err != nil {
		span.RecordError(err)
		return fmt.Errorf("send %s: %w", msg.Abbrev(), err)
	}
	if err := a.node.Dispatch(ctx, msg); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// SendPlanControl dispatches the quick "Go to APDL" request: a goto 150 m
// east of APDL at 2 m depth and 1 m/s.
func (a *Agent) SendPlanControl(ctx context.Context) (*imc.PlanControl, error) {
	pc := plan.GotoRequest(a.nextRequestID(), geo.APDL.TranslatedBy(0, 150), 2, 1, "Go to APDL")
	if err := a.send(ctx, pc); err != nil {
		a.log.Warn(ctx, "plan control not sent", logging.Err(err))
		return pc, err
	}
	a.log.Info(ctx, "plan control sent", logging.Any("request_id", pc.RequestID))
	return pc, nil
}

// StartPlan dispatches a start request carrying spec.
func (a *Agent) StartPlan(ctx context.Context, spec *imc.PlanSpecification) (*imc.PlanControl, error) {
	if spec == nil {
		return nil, errors.New("agent: nil plan")
	}
	pc := plan.StartRequest(a.nextRequestID(), spec)
	if err := a.send(ctx, pc); err != nil {
		a.log.Warn(ctx, "plan start not sent", logging.String("plan_id", spec.PlanID), logging.Err(err))
		return pc, err
	}
	a.log.Info(ctx, "plan start sent",
		logging.String("plan_id", spec.PlanID),
		logging.Any("request_id", pc.RequestID))
	return pc, nil
}

// Run serves the IMC node and the configured HTTP and gRPC surfaces until
// ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	var lis net.Listener
	if a.cfg.GRPCAddr != "" {
		var err error
		if lis, err = net.Listen("tcp", a.cfg.GRPCAddr); err != nil {
			return fmt.Errorf("listen grpc %s: %w", a.cfg.GRPCAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.node.Run(gctx) })

	if lis != nil {
		a.log.Info(ctx, "serving gRPC health", logging.String("addr", lis.Addr().String()))
		g.Go(func() error { return a.grpc.Serve(lis) })
		g.Go(func() error {
			<-gctx.Done()
			a.health.Shutdown()
			a.grpc.GracefulStop()
			return nil
		})
	}

	if a.cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.router}
		a.log.Info(ctx, "serving HTTP inspection", logging.String("addr", a.cfg.HTTPAddr))
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.log.Info(ctx, "agent started",
		logging.String("name", a.cfg.Name),
		logging.Any("id", a.cfg.ID),
		logging.String("type", a.sysType.String()))
	return g.Wait()
}
