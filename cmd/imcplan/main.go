// Command imcplan builds, inspects, archives and sends IMC mission plans.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
	"github.com/signalsfoundry/imc-missions/internal/imcnet"
	"github.com/signalsfoundry/imc-missions/internal/inspect"
	"github.com/signalsfoundry/imc-missions/internal/logging"
	"github.com/signalsfoundry/imc-missions/internal/observability"
	"github.com/signalsfoundry/imc-missions/internal/planstore"
	"github.com/signalsfoundry/imc-missions/mission"
	"github.com/signalsfoundry/imc-missions/model"
	"github.com/signalsfoundry/imc-missions/plan"
)

const usage = `usage: imcplan <command> [flags]

commands:
  tutorial  print a built-in tutorial plan (-n 1..6, 0 for all)
  build     build a plan from a JSON or YAML mission file
  export    write a tutorial as a mission file
  list      list archived plans
  show      print an archived plan
  delete    remove an archived plan
  send      send a plan or the Go to APDL request to the first peer found
`

var errUsage = errors.New("invalid usage")

func main() {
	log := logging.NewFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, log); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			log.Error(ctx, "imcplan failed", logging.Err(err))
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, log logging.Logger) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "tutorial":
		return runTutorial(rest, stdout)
	case "build":
		return runBuild(rest, stdout, log)
	case "export":
		return runExport(rest, stdout)
	case "list":
		return runList(rest, stdout)
	case "show":
		return runShow(rest, stdout)
	case "delete":
		return runDelete(rest, log)
	case "send":
		return runSend(ctx, rest, stdout, log)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "imcplan: unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet("imcplan "+name, flag.ContinueOnError)
}

// render writes msg to w in one of the inspection formats.
func render(w io.Writer, msg imc.Message, format string) error {
	switch format {
	case "", "json":
		b, err := inspect.JSON(msg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	case "protojson":
		b, err := inspect.ProtoJSON(msg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	case "dump":
		inspect.Dump(w, msg)
		return nil
	case "tree":
		_, err := fmt.Fprintln(w, strings.Join(inspect.Tree(msg), "\n"))
		return err
	case "hex":
		b, err := imc.Encode(imc.Header{Src: 0xFFFF, Dst: imc.BroadcastAddress}, msg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%x\n", b)
		return err
	case "view":
		return inspect.ViewTerminal(msg)
	default:
		return fmt.Errorf("unknown output format %q (json, protojson, dump, tree, hex, view)", format)
	}
}

// stats summarises a built plan on one line.
func stats(p *plan.Plan) string {
	line := fmt.Sprintf("%d maneuvers, %.0f m", p.Len(), p.Length())
	if d, ok := p.EstimatedDuration(); ok {
		line += fmt.Sprintf(", about %s", d.Round(time.Second))
	}
	return line
}

func emit(w io.Writer, m *mission.Mission, format string, withStats bool) (*imc.PlanSpecification, error) {
	p, err := mission.Build(m)
	if err != nil {
		return nil, err
	}
	spec, err := p.Spec()
	if err != nil {
		return nil, err
	}
	if withStats {
		fmt.Fprintf(w, "# %s: %s\n", spec.PlanID, stats(p))
	}
	return spec, render(w, spec, format)
}

func runTutorial(args []string, stdout io.Writer) error {
	fs := newFlagSet("tutorial")
	n := fs.Int("n", 1, "tutorial number, 0 for all")
	format := fs.String("o", "json", "output format")
	withStats := fs.Bool("stats", false, "print a summary line before each plan")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var missions []*mission.Mission
	if *n == 0 {
		missions = mission.Tutorials()
	} else {
		m, err := mission.Tutorial(*n)
		if err != nil {
			return err
		}
		missions = []*mission.Mission{m}
	}
	for _, m := range missions {
		if _, err := emit(stdout, m, *format, *withStats); err != nil {
			return err
		}
	}
	return nil
}

func runBuild(args []string, stdout io.Writer, log logging.Logger) error {
	fs := newFlagSet("build")
	file := fs.String("f", "", "mission file (.json, .yaml or .yml)")
	format := fs.String("o", "json", "output format")
	withStats := fs.Bool("stats", false, "print a summary line before the plan")
	dir := fs.String("store", "", "also save the plan into this archive directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("build: -f is required")
	}

	m, err := mission.LoadFile(*file)
	if err != nil {
		return err
	}
	spec, err := emit(stdout, m, *format, *withStats)
	if err != nil {
		return err
	}
	if *dir == "" {
		return nil
	}
	store, err := planstore.Open(*dir, 0)
	if err != nil {
		return err
	}
	sum, err := store.Save(spec)
	if err != nil {
		return err
	}
	log.Info(context.Background(), "plan archived",
		logging.String("plan_id", sum.ID),
		logging.Int("maneuvers", sum.Maneuvers),
		logging.String("dir", store.Dir()))
	return nil
}

func runExport(args []string, stdout io.Writer) error {
	fs := newFlagSet("export")
	n := fs.Int("n", 1, "tutorial number")
	format := fs.String("format", string(mission.FormatYAML), "json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	m, err := mission.Tutorial(*n)
	if err != nil {
		return err
	}
	return mission.Write(stdout, m, mission.Format(*format))
}

func openStore(fs *flag.FlagSet, args []string) (*planstore.Store, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	dir := fs.Lookup("store").Value.String()
	if dir == "" {
		return nil, fmt.Errorf("%s: -store is required", fs.Name())
	}
	return planstore.Open(dir, 0)
}

func runList(args []string, stdout io.Writer) error {
	fs := newFlagSet("list")
	fs.String("store", "", "archive directory")
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	sums, err := store.List()
	if err != nil {
		return err
	}
	for _, s := range sums {
		fmt.Fprintf(stdout, "%-24s %3d  %s  %s\n", s.ID, s.Maneuvers, s.SavedAt.Format(time.RFC3339), s.Description)
	}
	return nil
}

func runShow(args []string, stdout io.Writer) error {
	fs := newFlagSet("show")
	fs.String("store", "", "archive directory")
	id := fs.String("id", "", "plan id")
	format := fs.String("o", "json", "output format")
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	spec, err := store.Load(*id)
	if err != nil {
		return err
	}
	return render(stdout, spec, *format)
}

func runDelete(args []string, log logging.Logger) error {
	fs := newFlagSet("delete")
	fs.String("store", "", "archive directory")
	id := fs.String("id", "", "plan id")
	store, err := openStore(fs, args)
	if err != nil {
		return err
	}
	if err := store.Delete(*id); err != nil {
		return err
	}
	log.Info(context.Background(), "plan deleted", logging.String("plan_id", *id))
	return nil
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

// sendOptions selects what a send carries and where it goes.
type sendOptions struct {
	File     string
	Store    string
	PlanID   string
	GotoAPDL bool
	Stop     string
	To       string
	Timeout  time.Duration
	Node     imcnet.Config
}

func parseSend(args []string) (sendOptions, error) {
	opts := sendOptions{}
	var peers peerList
	var id uint
	var sysType string

	fs := newFlagSet("send")
	fs.StringVar(&opts.File, "f", "", "mission file to send")
	fs.StringVar(&opts.Store, "store", "", "archive directory holding -id")
	fs.StringVar(&opts.PlanID, "id", "", "archived plan id to send")
	fs.BoolVar(&opts.GotoAPDL, "goto-apdl", false, "send the Go to APDL quick plan")
	fs.StringVar(&opts.Stop, "stop", "", "send a stop request for this plan id")
	fs.StringVar(&opts.To, "to", "", "wait for this system name (any system when empty)")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long to wait for a peer")
	fs.StringVar(&opts.Node.Name, "name", "imcplan", "system name announced while sending")
	fs.UintVar(&id, "src", 0x4445, "IMC address used while sending")
	fs.StringVar(&sysType, "type", "CCU", "announced system type")
	fs.StringVar(&opts.Node.ListenAddr, "listen", "0.0.0.0:6002", "UDP bind address")
	fs.StringVar(&opts.Node.AdvertiseHost, "advertise", "", "host placed in the announced service URL")
	noMulticast := fs.Bool("no-multicast", false, "disable multicast discovery")
	fs.Var(&peers, "peer", "static peer host:port (repeatable or comma separated)")
	if err := fs.Parse(args); err != nil {
		return sendOptions{}, err
	}

	chosen := 0
	for _, set := range []bool{opts.File != "", opts.PlanID != "", opts.GotoAPDL, opts.Stop != ""} {
		if set {
			chosen++
		}
	}
	if chosen != 1 {
		return sendOptions{}, fmt.Errorf("send: choose exactly one of -f, -id, -goto-apdl or -stop")
	}
	if id == 0 || id > 0xFFFF {
		return sendOptions{}, fmt.Errorf("send: -src %d out of range", id)
	}
	t, err := imc.ParseSystemType(sysType)
	if err != nil {
		return sendOptions{}, err
	}
	opts.Node.ID = uint16(id)
	opts.Node.Type = t
	opts.Node.Multicast = !*noMulticast
	opts.Node.StaticPeers = peers
	return opts, nil
}

// message builds the PlanControl selected by opts.
func (o sendOptions) message(reqID uint16) (*imc.PlanControl, error) {
	switch {
	case o.GotoAPDL:
		return plan.GotoRequest(reqID, geo.APDL.TranslatedBy(0, 150), 2, 1, "Go to APDL"), nil
	case o.Stop != "":
		return plan.StopRequest(reqID, o.Stop), nil
	case o.File != "":
		m, err := mission.LoadFile(o.File)
		if err != nil {
			return nil, err
		}
		spec, err := mission.Spec(m)
		if err != nil {
			return nil, err
		}
		return plan.StartRequest(reqID, spec), nil
	default:
		if o.Store == "" {
			return nil, fmt.Errorf("send: -id needs -store")
		}
		store, err := planstore.Open(o.Store, 0)
		if err != nil {
			return nil, err
		}
		spec, err := store.Load(o.PlanID)
		if err != nil {
			return nil, err
		}
		return plan.StartRequest(reqID, spec), nil
	}
}

func runSend(ctx context.Context, args []string, stdout io.Writer, log logging.Logger) error {
	opts, err := parseSend(args)
	if err != nil {
		return err
	}
	pc, err := opts.message(uint16(os.Getpid()))
	if err != nil {
		return err
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	node := imcnet.NewNode(opts.Node, imcnet.WithLogger(log))
	peer, err := send(ctx, node, pc, opts.To, opts.Timeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "sent %s %s (request %d) to %s\n",
		pc.Abbrev(), pc.Op, pc.RequestID, peerLabel(peer))
	return nil
}

// send runs node just long enough to find a peer and dispatch msg once.
func send(ctx context.Context, node *imcnet.Node, msg imc.Message, to string, timeout time.Duration) (model.System, error) {
	if err := node.Listen(); err != nil {
		return model.System{}, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- node.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitCtx, cancelWait := context.WithTimeout(ctx, timeout)
	defer cancelWait()
	peer, err := node.WaitForPeer(waitCtx, to)
	if err != nil {
		return model.System{}, err
	}
	if to != "" {
		return peer, node.SendTo(ctx, peer, msg)
	}
	return peer, node.Dispatch(ctx, msg)
}

func peerLabel(s model.System) string {
	if s.Name == "" {
		return fmt.Sprintf("0x%04X", s.ID)
	}
	return fmt.Sprintf("%s (0x%04X)", s.Name, s.ID)
}
