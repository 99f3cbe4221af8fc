package main

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/imc-missions/internal/agent"
	"github.com/signalsfoundry/imc-missions/internal/logging"
)

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-name", "ccu-test",
		"-id", "0x4100",
		"-type", "CCU",
		"-peer", "10.0.0.1:6001,10.0.0.2:6001",
		"-peer", "10.0.0.3:6001",
		"-periodic", "500ms",
		"-http-addr", "",
		"-send-plan-control",
	})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.Agent.Name != "ccu-test" || cfg.Agent.ID != 0x4100 || cfg.Agent.Type != "CCU" {
		t.Fatalf("identity = %+v", cfg.Agent)
	}
	if len(cfg.Agent.StaticPeers) != 3 || cfg.Agent.StaticPeers[2] != "10.0.0.3:6001" {
		t.Fatalf("StaticPeers = %v", cfg.Agent.StaticPeers)
	}
	if cfg.Agent.PeriodicInterval != 500*time.Millisecond || cfg.Agent.HTTPAddr != "" || !cfg.SendPlanControl {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.Agent.ID != agent.DefaultID || cfg.Agent.Port != agent.DefaultPort || cfg.Agent.PeriodicInterval != agent.DefaultPeriodic {
		t.Fatalf("defaults = %+v", cfg.Agent)
	}
}

func TestParseFlagsRejectsBadID(t *testing.T) {
	if _, err := parseFlags([]string{"-id", "70000"}); err == nil {
		t.Fatalf("parseFlags() accepted an id above 0xFFFF")
	}
}

func TestAgentStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{Agent: agent.Config{
		Name:             "smoke",
		ListenAddr:       "127.0.0.1:0",
		DisableMulticast: true,
		PeriodicInterval: 10 * time.Millisecond,
		SendTimeout:      20 * time.Millisecond,
	}, SendPlanControl: true}

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, logging.Noop())
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run() did not return after cancel")
	}
}
