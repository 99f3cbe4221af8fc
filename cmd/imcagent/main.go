package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/signalsfoundry/imc-missions/internal/agent"
	"github.com/signalsfoundry/imc-missions/internal/logging"
	"github.com/signalsfoundry/imc-missions/internal/observability"
)

// Config is the command-line surface of imcagent.
type Config struct {
	Agent agent.Config

	// SendPlanControl dispatches one "Go to APDL" request once a peer is
	// known.
	SendPlanControl bool

	LogLevel  string
	LogFormat string
	LogFile   string
}

type peerList []string

func (p *peerList) String() string { return strings.Join(*p, ",") }

func (p *peerList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*p = append(*p, s)
		}
	}
	return nil
}

func parseFlags(args []string) (Config, error) {
	var cfg Config
	var peers peerList
	var id uint

	fs := flag.NewFlagSet("imcagent", flag.ContinueOnError)
	fs.StringVar(&cfg.Agent.Name, "name", agent.DefaultName, "system name announced to peers")
	fs.UintVar(&id, "id", uint(agent.DefaultID), "IMC address")
	fs.IntVar(&cfg.Agent.Port, "port", agent.DefaultPort, "UDP port for IMC traffic")
	fs.StringVar(&cfg.Agent.ListenAddr, "listen", "", "UDP bind address (overrides -port)")
	fs.StringVar(&cfg.Agent.Type, "type", agent.DefaultType, "announced system type (CCU, HUMANSENSOR, UUV, USV, UAV, UGV, STATICSENSOR, MOBILESENSOR, WSN)")
	fs.StringVar(&cfg.Agent.AdvertiseHost, "advertise", "", "host placed in the announced service URL")
	fs.DurationVar(&cfg.Agent.AnnounceInterval, "announce", agent.DefaultAnnounce, "interval between Announce messages")
	fs.DurationVar(&cfg.Agent.PeriodicInterval, "periodic", agent.DefaultPeriodic, "interval of the periodic callback")
	fs.DurationVar(&cfg.Agent.SendTimeout, "send-timeout", agent.DefaultSendTimeout, "how long a send waits for a peer")
	fs.BoolVar(&cfg.Agent.DisableMulticast, "no-multicast", false, "disable multicast discovery")
	fs.Var(&peers, "peer", "static peer host:port (repeatable or comma separated)")
	fs.StringVar(&cfg.Agent.HTTPAddr, "http-addr", ":9090", "HTTP address for /metrics, /healthz and plans (empty disables)")
	fs.StringVar(&cfg.Agent.GRPCAddr, "grpc-addr", ":50051", "gRPC health address (empty disables)")
	fs.StringVar(&cfg.Agent.PlanDir, "plan-dir", "", "plan archive directory (empty disables)")
	fs.BoolVar(&cfg.SendPlanControl, "send-plan-control", false, "send a Go to APDL request once a peer is known")
	fs.StringVar(&cfg.LogLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", os.Getenv("LOG_FORMAT"), "text or json")
	fs.StringVar(&cfg.LogFile, "log-file", os.Getenv("LOG_FILE"), "rotated log file (default stderr)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if id == 0 || id > 0xFFFF {
		return Config{}, fmt.Errorf("-id %d out of range", id)
	}
	cfg.Agent.ID = uint16(id)
	cfg.Agent.StaticPeers = peers
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxBackups: 3,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "agent exited", logging.Err(err))
		stop()
		os.Exit(1)
	}
	log.Info(ctx, "agent stopped")
}

func run(ctx context.Context, cfg Config, log logging.Logger) error {
	collector, err := observability.NewIMCCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	a, err := agent.New(cfg.Agent, agent.WithLogger(log), agent.WithMetrics(collector))
	if err != nil {
		return err
	}
	eff := a.Config()
	log.Info(ctx, "starting IMC agent",
		logging.String("name", eff.Name),
		logging.String("id", fmt.Sprintf("0x%04X", eff.ID)),
		logging.String("type", eff.Type),
		logging.Int("port", eff.Port),
	)

	if cfg.SendPlanControl {
		go func() { _, _ = a.SendPlanControl(ctx) }()
	}

	return a.Run(ctx)
}
