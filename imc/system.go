package imc

import "strings"

// Heartbeat signals that a system is alive.
type Heartbeat struct{}

func (*Heartbeat) ID() uint16        { return 150 }
func (*Heartbeat) Abbrev() string    { return "Heartbeat" }
func (*Heartbeat) Fields() []Field   { return nil }
func (*Heartbeat) marshal(*writer)   {}
func (*Heartbeat) unmarshal(*reader) {}

// Announce advertises a system, its position and its service URLs.
type Announce struct {
	SysName  string
	SysType  SystemType
	Owner    uint16
	Lat      float64 // radians
	Lon      float64 // radians
	Height   float32
	Services string // ';'-separated URLs
}

func (*Announce) ID() uint16     { return 151 }
func (*Announce) Abbrev() string { return "Announce" }

func (m *Announce) Fields() []Field {
	return []Field{
		{"sys_name", m.SysName},
		{"sys_type", m.SysType},
		{"owner", m.Owner},
		{"lat", m.Lat},
		{"lon", m.Lon},
		{"height", m.Height},
		{"services", m.Services},
	}
}

func (m *Announce) marshal(w *writer) {
	w.text(m.SysName)
	w.u8(uint8(m.SysType))
	w.u16(m.Owner)
	w.f64(m.Lat)
	w.f64(m.Lon)
	w.f32(m.Height)
	w.text(m.Services)
}

func (m *Announce) unmarshal(r *reader) {
	m.SysName = r.text()
	m.SysType = SystemType(r.u8())
	m.Owner = r.u16()
	m.Lat = r.f64()
	m.Lon = r.f64()
	m.Height = r.f32()
	m.Services = r.text()
}

// ServiceList splits Services into its URLs.
func (m *Announce) ServiceList() []string {
	var out []string
	for _, s := range strings.Split(m.Services, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EstimatedState is the navigation estimate of a vehicle: a reference
// position plus a local NED displacement.
type EstimatedState struct {
	Lat, Lon        float64 // radians
	Height          float32
	X, Y, Z         float32 // metres, NED offset from Lat/Lon
	Phi, Theta, Psi float32 // radians
	U, V, W         float32
	VX, VY, VZ      float32
	P, Q, R         float32
	Depth, Alt      float32
}

func (*EstimatedState) ID() uint16     { return 350 }
func (*EstimatedState) Abbrev() string { return "EstimatedState" }

func (m *EstimatedState) Fields() []Field {
	return []Field{
		{"lat", m.Lat}, {"lon", m.Lon}, {"height", m.Height},
		{"x", m.X}, {"y", m.Y}, {"z", m.Z},
		{"phi", m.Phi}, {"theta", m.Theta}, {"psi", m.Psi},
		{"u", m.U}, {"v", m.V}, {"w", m.W},
		{"vx", m.VX}, {"vy", m.VY}, {"vz", m.VZ},
		{"p", m.P}, {"q", m.Q}, {"r", m.R},
		{"depth", m.Depth}, {"alt", m.Alt},
	}
}

func (m *EstimatedState) floats() []*float32 {
	return []*float32{
		&m.Height, &m.X, &m.Y, &m.Z, &m.Phi, &m.Theta, &m.Psi,
		&m.U, &m.V, &m.W, &m.VX, &m.VY, &m.VZ, &m.P, &m.Q, &m.R,
		&m.Depth, &m.Alt,
	}
}

func (m *EstimatedState) marshal(w *writer) {
	w.f64(m.Lat)
	w.f64(m.Lon)
	for _, f := range m.floats() {
		w.f32(*f)
	}
}

func (m *EstimatedState) unmarshal(r *reader) {
	m.Lat = r.f64()
	m.Lon = r.f64()
	for _, f := range m.floats() {
		*f = r.f32()
	}
}

// Raw carries a message whose id this package does not know.
type Raw struct {
	MgID    uint16
	Payload []byte
}

func (m *Raw) ID() uint16 { return m.MgID }

func (m *Raw) Abbrev() string {
	if name := AbbrevOf(m.MgID); name != "" {
		return name
	}
	return "Unknown"
}

func (m *Raw) Fields() []Field {
	return []Field{{"payload", m.Payload}}
}

func (m *Raw) marshal(w *writer) { w.buf = append(w.buf, m.Payload...) }

func (m *Raw) unmarshal(r *reader) {
	m.Payload = append([]byte(nil), r.take(len(r.b)-r.off)...)
}
