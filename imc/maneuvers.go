package imc

// Goto moves the vehicle to a waypoint.
type Goto struct {
	Timeout uint16
	Waypoint
	Roll   float64
	Pitch  float64
	Yaw    float64
	Custom string
}

func (*Goto) ID() uint16     { return 450 }
func (*Goto) Abbrev() string { return "Goto" }

func (m *Goto) Fields() []Field {
	return concat(
		[]Field{{"timeout", m.Timeout}},
		m.Waypoint.fields(),
		m.Waypoint.speedFields(),
		[]Field{{"roll", m.Roll}, {"pitch", m.Pitch}, {"yaw", m.Yaw}, {"custom", m.Custom}},
	)
}

func (m *Goto) marshal(w *writer) {
	w.u16(m.Timeout)
	m.marshalPosition(w)
	m.marshalSpeed(w)
	w.f64(m.Roll)
	w.f64(m.Pitch)
	w.f64(m.Yaw)
	w.text(m.Custom)
}

func (m *Goto) unmarshal(r *reader) {
	m.Timeout = r.u16()
	m.unmarshalPosition(r)
	m.unmarshalSpeed(r)
	m.Roll = r.f64()
	m.Pitch = r.f64()
	m.Yaw = r.f64()
	m.Custom = r.text()
}

// PopUp brings the vehicle to the surface for a while.
type PopUp struct {
	Timeout uint16
	Waypoint
	Duration uint16 // seconds
	Radius   float32
	Flags    PopUpFlags
	Custom   string
}

func (*PopUp) ID() uint16     { return 451 }
func (*PopUp) Abbrev() string { return "PopUp" }

func (m *PopUp) Fields() []Field {
	return concat(
		[]Field{{"timeout", m.Timeout}},
		m.Waypoint.fields(),
		m.Waypoint.speedFields(),
		[]Field{{"duration", m.Duration}, {"radius", m.Radius}, {"flags", m.Flags}, {"custom", m.Custom}},
	)
}

func (m *PopUp) marshal(w *writer) {
	w.u16(m.Timeout)
	m.marshalPosition(w)
	m.marshalSpeed(w)
	w.u16(m.Duration)
	w.f32(m.Radius)
	w.u8(uint8(m.Flags))
	w.text(m.Custom)
}

func (m *PopUp) unmarshal(r *reader) {
	m.Timeout = r.u16()
	m.unmarshalPosition(r)
	m.unmarshalSpeed(r)
	m.Duration = r.u16()
	m.Radius = r.f32()
	m.Flags = PopUpFlags(r.u8())
	m.Custom = r.text()
}

// Loiter circles (or otherwise holds) around a waypoint.
type Loiter struct {
	Timeout uint16
	Waypoint
	Duration  uint16 // seconds
	Type      LoiterType
	Radius    float32
	Length    float32
	Bearing   float64
	Direction LoiterDirection
	Custom    string
}

func (*Loiter) ID() uint16     { return 453 }
func (*Loiter) Abbrev() string { return "Loiter" }

func (m *Loiter) Fields() []Field {
	return concat(
		[]Field{{"timeout", m.Timeout}},
		m.Waypoint.fields(),
		[]Field{{"duration", m.Duration}},
		m.Waypoint.speedFields(),
		[]Field{
			{"type", m.Type},
			{"radius", m.Radius},
			{"length", m.Length},
			{"bearing", m.Bearing},
			{"direction", m.Direction},
			{"custom", m.Custom},
		},
	)
}

func (m *Loiter) marshal(w *writer) {
	w.u16(m.Timeout)
	m.marshalPosition(w)
	w.u16(m.Duration)
	m.marshalSpeed(w)
	w.u8(uint8(m.Type))
	w.f32(m.Radius)
	w.f32(m.Length)
	w.f64(m.Bearing)
	w.u8(uint8(m.Direction))
	w.text(m.Custom)
}

func (m *Loiter) unmarshal(r *reader) {
	m.Timeout = r.u16()
	m.unmarshalPosition(r)
	m.Duration = r.u16()
	m.unmarshalSpeed(r)
	m.Type = LoiterType(r.u8())
	m.Radius = r.f32()
	m.Length = r.f32()
	m.Bearing = r.f64()
	m.Direction = LoiterDirection(r.u8())
	m.Custom = r.text()
}

// YoYo oscillates in depth while travelling to a waypoint. Z is the centre
// of the oscillation.
type YoYo struct {
	Timeout uint16
	Waypoint
	Amplitude float32
	Pitch     float32
	Custom    string
}

func (*YoYo) ID() uint16     { return 459 }
func (*YoYo) Abbrev() string { return "YoYo" }

func (m *YoYo) Fields() []Field {
	return concat(
		[]Field{{"timeout", m.Timeout}},
		m.Waypoint.fields(),
		[]Field{{"amplitude", m.Amplitude}, {"pitch", m.Pitch}},
		m.Waypoint.speedFields(),
		[]Field{{"custom", m.Custom}},
	)
}

func (m *YoYo) marshal(w *writer) {
	w.u16(m.Timeout)
	m.marshalPosition(w)
	w.f32(m.Amplitude)
	w.f32(m.Pitch)
	m.marshalSpeed(w)
	w.text(m.Custom)
}

func (m *YoYo) unmarshal(r *reader) {
	m.Timeout = r.u16()
	m.unmarshalPosition(r)
	m.Amplitude = r.f32()
	m.Pitch = r.f32()
	m.unmarshalSpeed(r)
	m.Custom = r.text()
}

// StationKeeping holds the vehicle inside a radius around a waypoint.
type StationKeeping struct {
	Waypoint
	Radius   float32
	Duration uint16 // seconds, 0 means unlimited
	Custom   string
}

func (*StationKeeping) ID() uint16     { return 461 }
func (*StationKeeping) Abbrev() string { return "StationKeeping" }

func (m *StationKeeping) Fields() []Field {
	return concat(
		m.Waypoint.fields(),
		[]Field{{"radius", m.Radius}, {"duration", m.Duration}},
		m.Waypoint.speedFields(),
		[]Field{{"custom", m.Custom}},
	)
}

func (m *StationKeeping) marshal(w *writer) {
	m.marshalPosition(w)
	w.f32(m.Radius)
	w.u16(m.Duration)
	m.marshalSpeed(w)
	w.text(m.Custom)
}

func (m *StationKeeping) unmarshal(r *reader) {
	m.unmarshalPosition(r)
	m.Radius = r.f32()
	m.Duration = r.u16()
	m.unmarshalSpeed(r)
	m.Custom = r.text()
}
