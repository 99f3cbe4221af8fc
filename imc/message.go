// Package imc implements the subset of the IMC (Inter-Module Communication)
// protocol needed to describe and command vehicle plans: message types,
// enumerations and the binary wire codec.
package imc

// Message is an IMC message.
type Message interface {
	ID() uint16
	Abbrev() string
	// Fields lists the message fields in wire order.
	Fields() []Field

	marshal(w *writer)
	unmarshal(r *reader)
}

// Field is a named message field value. Values are numbers, strings,
// enumerations, a nested Message or a []Message.
type Field struct {
	Name  string
	Value any
}

// Maneuver is implemented by every message that can be placed in a plan.
type Maneuver interface {
	Message
	Point() *Waypoint
}

// Waypoint holds the location and kinematic fields shared by the maneuvers.
type Waypoint struct {
	Lat        float64 // radians
	Lon        float64 // radians
	Z          float32
	ZUnits     ZUnits
	Speed      float32
	SpeedUnits SpeedUnits
}

// Point returns the shared waypoint fields.
func (w *Waypoint) Point() *Waypoint { return w }

func (w *Waypoint) fields() []Field {
	return []Field{
		{"lat", w.Lat},
		{"lon", w.Lon},
		{"z", w.Z},
		{"z_units", w.ZUnits},
	}
}

func (w *Waypoint) speedFields() []Field {
	return []Field{
		{"speed", w.Speed},
		{"speed_units", w.SpeedUnits},
	}
}

// marshalPosition writes lat, lon, z and z_units.
func (w *Waypoint) marshalPosition(wr *writer) {
	wr.f64(w.Lat)
	wr.f64(w.Lon)
	wr.f32(w.Z)
	wr.u8(uint8(w.ZUnits))
}

func (w *Waypoint) unmarshalPosition(r *reader) {
	w.Lat = r.f64()
	w.Lon = r.f64()
	w.Z = r.f32()
	w.ZUnits = ZUnits(r.u8())
}

func (w *Waypoint) marshalSpeed(wr *writer) {
	wr.f32(w.Speed)
	wr.u8(uint8(w.SpeedUnits))
}

func (w *Waypoint) unmarshalSpeed(r *reader) {
	w.Speed = r.f32()
	w.SpeedUnits = SpeedUnits(r.u8())
}

func concat(parts ...[]Field) []Field {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]Field, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func messages[T Message](list []T) []Message {
	out := make([]Message, len(list))
	for i, m := range list {
		out[i] = m
	}
	return out
}
