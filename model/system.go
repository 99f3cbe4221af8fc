// Package model holds the plain records shared between the transport, the
// agent and the inspection surfaces.
package model

import (
	"time"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
)

// System is a remote IMC system discovered on the network.
type System struct {
	ID   uint16 // IMC address
	Name string
	Type imc.SystemType

	// Addr is the host:port that accepts IMC over UDP for this system.
	Addr     string
	Services []string

	Position    geo.Geo
	Depth       float64
	HasPosition bool

	LastSeen time.Time
}

// Reachable reports whether the system advertised a UDP endpoint.
func (s System) Reachable() bool { return s.Addr != "" }
