package imc

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestCRC16KnownValue(t *testing.T) {
	if got := crc16([]byte("123456789")); got != 0xBB3D {
		t.Fatalf("crc16 = 0x%04x, want 0xbb3d", got)
	}
}

func TestEncodeHeaderLayout(t *testing.T) {
	h := Header{Timestamp: 1234.5, Src: 0x4444, SrcEnt: 7, Dst: BroadcastAddress, DstEnt: AnyEntity}
	b, err := Encode(h, &Heartbeat{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(b) != HeaderSize+FooterSize {
		t.Fatalf("len = %d, want %d", len(b), HeaderSize+FooterSize)
	}
	if b[0] != 0x54 || b[1] != 0xFE {
		t.Fatalf("sync bytes = % x, want 54 fe", b[:2])
	}
	if id := binary.LittleEndian.Uint16(b[2:]); id != 150 {
		t.Fatalf("mgid = %d, want 150", id)
	}
	if ts := math.Float64frombits(binary.LittleEndian.Uint64(b[6:])); ts != 1234.5 {
		t.Fatalf("timestamp = %v, want 1234.5", ts)
	}
}

func TestGotoRoundTrip(t *testing.T) {
	in := &Goto{
		Timeout: 60,
		Waypoint: Waypoint{
			Lat: 0.7188, Lon: -0.1519, Z: 2, ZUnits: ZUnitsDepth,
			Speed: 1.2, SpeedUnits: SpeedUnitsMetersPS,
		},
		Yaw:    -1,
		Custom: "k=v",
	}
	b, err := Encode(Header{Src: 1, Dst: 2}, in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	h, m, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if h.Src != 1 || h.Dst != 2 || h.MgID != 450 {
		t.Fatalf("header = %+v", h)
	}
	out, ok := m.(*Goto)
	if !ok {
		t.Fatalf("decoded %T, want *Goto", m)
	}
	if *out != *in {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}
}

func TestPlanSpecificationRoundTrip(t *testing.T) {
	spec := &PlanSpecification{
		PlanID:      "p1",
		Description: "two legs",
		StartManID:  "1",
		Variables:   []*PlanVariable{{Name: "count", Value: "3", Type: VariableNumber, Access: VariableLocal}},
		Maneuvers: []*PlanManeuver{
			{ManeuverID: "1", Data: &Goto{Waypoint: Waypoint{Lat: 0.1, Lon: 0.2, Speed: 1}}},
			{ManeuverID: "2", Data: &Loiter{Waypoint: Waypoint{Lat: 0.1, Lon: 0.2}, Type: LoiterCircular, Radius: 40, Duration: 180},
				EndActions: []Message{&Abort{}}},
		},
		Transitions: []*PlanTransition{{SourceMan: "1", DestMan: "2", Conditions: "ManeuverIsDone"}},
	}
	pc := &PlanControl{Type: PlanControlRequest, Op: PlanControlStart, RequestID: 9, PlanID: "p1", Flags: PlanControlCalibrate, Arg: spec}

	b, err := Encode(Header{}, pc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, m, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := m.(*PlanControl)
	if got.RequestID != 9 || got.Flags != PlanControlCalibrate || got.PlanID != "p1" {
		t.Fatalf("PlanControl = %+v", got)
	}
	gs, ok := got.Arg.(*PlanSpecification)
	if !ok {
		t.Fatalf("arg %T, want *PlanSpecification", got.Arg)
	}
	if len(gs.Maneuvers) != 2 || len(gs.Transitions) != 1 || len(gs.Variables) != 1 {
		t.Fatalf("spec counts = %d/%d/%d", len(gs.Maneuvers), len(gs.Transitions), len(gs.Variables))
	}
	loiter, ok := gs.Maneuver("2").Data.(*Loiter)
	if !ok || loiter.Radius != 40 || loiter.Type != LoiterCircular || loiter.Duration != 180 {
		t.Fatalf("maneuver 2 = %+v", gs.Maneuver("2").Data)
	}
	if _, ok := gs.Maneuver("2").EndActions[0].(*Abort); !ok {
		t.Fatalf("end action = %T, want *Abort", gs.Maneuver("2").EndActions[0])
	}
	if gs.Transitions[0].Conditions != "ManeuverIsDone" {
		t.Fatalf("conditions = %q", gs.Transitions[0].Conditions)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	b, err := Encode(Header{}, &Announce{SysName: "lauv", Services: "imc+udp://10.0.0.1:6002/"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	bad := append([]byte(nil), b...)
	bad[HeaderSize+1] ^= 0xFF
	if _, _, err := Decode(bad); !errors.Is(err, ErrChecksum) {
		t.Fatalf("Decode(corrupted) err = %v, want ErrChecksum", err)
	}

	if _, _, err := Decode(b[:len(b)-3]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("Decode(short) err = %v, want ErrTruncated", err)
	}

	bad = append([]byte(nil), b...)
	bad[0] = 0
	if _, _, err := Decode(bad); !errors.Is(err, ErrSync) {
		t.Fatalf("Decode(bad sync) err = %v, want ErrSync", err)
	}
}

func TestDecodeBigEndian(t *testing.T) {
	be := binary.BigEndian
	payload := []byte{0x00, 0x03, 'a', 'b', 'c'} // SysName "abc"
	payload = append(payload, byte(SystemUUV))
	payload = be.AppendUint16(payload, 0)
	payload = be.AppendUint64(payload, math.Float64bits(0.5))
	payload = be.AppendUint64(payload, math.Float64bits(-0.25))
	payload = be.AppendUint32(payload, math.Float32bits(3))
	payload = be.AppendUint16(payload, 0)

	b := make([]byte, HeaderSize)
	be.PutUint16(b[0:], SyncNumber)
	be.PutUint16(b[2:], 151)
	be.PutUint16(b[4:], uint16(len(payload)))
	be.PutUint16(b[14:], 0x0020)
	b = append(b, payload...)
	b = be.AppendUint16(b, crc16(b))

	h, m, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if h.Src != 0x0020 {
		t.Fatalf("src = 0x%x, want 0x20", h.Src)
	}
	a := m.(*Announce)
	if a.SysName != "abc" || a.SysType != SystemUUV || a.Lat != 0.5 || a.Lon != -0.25 || a.Height != 3 {
		t.Fatalf("announce = %+v", a)
	}
}

func TestDecodeUnknownAsRaw(t *testing.T) {
	b, err := Encode(Header{}, &Raw{MgID: 500, Payload: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, m, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	raw, ok := m.(*Raw)
	if !ok || raw.MgID != 500 || len(raw.Payload) != 3 {
		t.Fatalf("decoded %#v, want Raw 500", m)
	}
	if raw.Abbrev() != "VehicleState" {
		t.Fatalf("Abbrev() = %q, want VehicleState", raw.Abbrev())
	}
}

func TestInlineRoundTrip(t *testing.T) {
	b, err := MarshalInline(&StationKeeping{Radius: 15, Duration: 60})
	if err != nil {
		t.Fatalf("MarshalInline: %v", err)
	}
	m, err := UnmarshalInline(b)
	if err != nil {
		t.Fatalf("UnmarshalInline: %v", err)
	}
	if sk := m.(*StationKeeping); sk.Radius != 15 || sk.Duration != 60 {
		t.Fatalf("station keeping = %+v", sk)
	}

	b, err = MarshalInline(nil)
	if err != nil {
		t.Fatalf("MarshalInline(nil): %v", err)
	}
	if m, err := UnmarshalInline(b); err != nil || m != nil {
		t.Fatalf("UnmarshalInline(null) = %v, %v", m, err)
	}
}

func TestInlineUnexpectedManeuverType(t *testing.T) {
	w := &writer{}
	w.text("1")
	w.message(&Heartbeat{})
	w.u16(0)
	w.u16(0)

	r := &reader{b: w.buf, order: binary.LittleEndian}
	var pm PlanManeuver
	pm.unmarshal(r)
	if !errors.Is(r.err, ErrUnexpectedType) {
		t.Fatalf("err = %v, want ErrUnexpectedType", r.err)
	}
}

func TestPlaintextTooLarge(t *testing.T) {
	big := make([]byte, maxField+1)
	if _, err := Encode(Header{}, &Goto{Custom: string(big)}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Encode err = %v, want ErrTooLarge", err)
	}
}

func TestEncodeTypedNilMessages(t *testing.T) {
	if _, err := Encode(Header{}, (*Goto)(nil)); !errors.Is(err, ErrNilMessage) {
		t.Fatalf("Encode(typed nil) err = %v, want ErrNilMessage", err)
	}

	b, err := Encode(Header{}, &PlanControl{Op: PlanControlStart, Arg: (*Goto)(nil)})
	if err != nil {
		t.Fatalf("Encode(nil arg) err = %v", err)
	}
	_, m, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pc := m.(*PlanControl); pc.Arg != nil {
		t.Fatalf("Arg = %#v, want nil", pc.Arg)
	}

	spec := &PlanSpecification{PlanID: "p", Maneuvers: []*PlanManeuver{nil}}
	if _, err := Encode(Header{}, spec); !errors.Is(err, ErrNilMessage) {
		t.Fatalf("Encode(nil list entry) err = %v, want ErrNilMessage", err)
	}
}
