package imcnet

import (
	"time"

	"github.com/signalsfoundry/imc-missions/imc"
)

// Discovery defaults used by the Dune and Neptus tool chain.
const (
	DefaultMulticastGroup    = "224.0.75.69"
	DefaultMulticastPortLow  = 30100
	DefaultMulticastPortHigh = 30104

	DefaultListenAddr        = "0.0.0.0:6001"
	DefaultAnnounceInterval  = 10 * time.Second
	DefaultHeartbeatInterval = time.Second
	DefaultPeerTTL           = 30 * time.Second
)

// Config describes the identity of a node and how it discovers peers.
type Config struct {
	Name string
	ID   uint16 // IMC address
	Type imc.SystemType

	// ListenAddr is the UDP host:port the node receives on. Use port 0 for
	// an ephemeral port.
	ListenAddr string
	// AdvertiseHost is the host placed in the announced service URL. When
	// empty the first non-loopback IPv4 address is used.
	AdvertiseHost string

	AnnounceInterval  time.Duration
	HeartbeatInterval time.Duration
	PeerTTL           time.Duration

	// Multicast enables announcing to and listening on the discovery group.
	Multicast         bool
	MulticastGroup    string
	MulticastPortLow  int
	MulticastPortHigh int

	// StaticPeers are host:port endpoints that receive announces directly,
	// for networks without multicast.
	StaticPeers []string
}

// ApplyDefaults fills zero values with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "imc-go"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.AnnounceInterval <= 0 {
		c.AnnounceInterval = DefaultAnnounceInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.PeerTTL <= 0 {
		c.PeerTTL = DefaultPeerTTL
	}
	if c.MulticastGroup == "" {
		c.MulticastGroup = DefaultMulticastGroup
	}
	if c.MulticastPortLow == 0 {
		c.MulticastPortLow = DefaultMulticastPortLow
	}
	if c.MulticastPortHigh < c.MulticastPortLow {
		c.MulticastPortHigh = c.MulticastPortLow + (DefaultMulticastPortHigh - DefaultMulticastPortLow)
	}
}
