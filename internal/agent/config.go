// Package agent runs a long-lived IMC participant: it keeps a node on the
// network, reports what it hears, drives a periodic callback and exposes
// health, metrics and plan inspection endpoints.
package agent

import "time"

// Config holds the agent identity and surfaces.
type Config struct {
	// Name is announced to other systems.
	// Default: "Go Agent"
	Name string
	// ID is the IMC address.
	// Default: 0x4444
	ID uint16
	// Port is the UDP port for IMC traffic.
	// Default: 7010
	Port int
	// ListenAddr overrides the UDP bind address derived from Port.
	ListenAddr string
	// Type is the announced system type name, such as "UUV" or "CCU".
	// Default: "UAV"
	Type string
	// AdvertiseHost overrides the host placed in the announced service URL.
	AdvertiseHost string

	// AnnounceInterval is the time between Announce messages.
	// Default: 10 seconds
	AnnounceInterval time.Duration
	// PeriodicInterval is the period of the agent's own periodic callback.
	// Default: 3 seconds
	PeriodicInterval time.Duration
	// SendTimeout bounds the wait for a peer before a send gives up.
	// Default: 5 seconds
	SendTimeout time.Duration

	// DisableMulticast turns off multicast discovery; use StaticPeers then.
	DisableMulticast bool
	StaticPeers      []string

	// HTTPAddr serves /metrics, /healthz and the plan endpoints. Empty
	// disables the HTTP surface.
	HTTPAddr string
	// GRPCAddr serves the gRPC health service. Empty disables it.
	GRPCAddr string
	// PlanDir is the plan archive directory. Empty disables the archive.
	PlanDir string
}

// Defaults.
const (
	DefaultName             = "Go Agent"
	DefaultID        uint16 = 0x4444
	DefaultPort             = 7010
	DefaultType             = "UAV"
	DefaultAnnounce         = 10 * time.Second
	DefaultPeriodic         = 3 * time.Second
	DefaultSendTimeout      = 5 * time.Second
)

// ApplyDefaults applies default values to fields that are zero or invalid.
func (c Config) ApplyDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.ID == 0 {
		c.ID = DefaultID
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = DefaultPort
	}
	if c.Type == "" {
		c.Type = DefaultType
	}
	if c.AnnounceInterval <= 0 {
		c.AnnounceInterval = DefaultAnnounce
	}
	if c.PeriodicInterval <= 0 {
		c.PeriodicInterval = DefaultPeriodic
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}
