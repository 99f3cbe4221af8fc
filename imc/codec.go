package imc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
)

const (
	// SyncNumber marks the start of every IMC packet.
	SyncNumber uint16 = 0xFE54
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 20
	// FooterSize is the trailing checksum length in bytes.
	FooterSize = 2

	// BroadcastAddress addresses every system.
	BroadcastAddress uint16 = 0xFFFF
	// AnyEntity addresses every entity of a system.
	AnyEntity uint8 = 0xFF

	nullMessageID uint16 = 0xFFFF
	maxField             = math.MaxUint16
)

var (
	// ErrSync is returned when a packet starts with neither byte order of
	// SyncNumber.
	ErrSync = errors.New("imc: bad synchronization number")
	// ErrChecksum is returned when the CRC-16 footer does not match.
	ErrChecksum = errors.New("imc: checksum mismatch")
	// ErrTruncated is returned when data ends before a field or the footer.
	ErrTruncated = errors.New("imc: truncated data")
	// ErrTooLarge is returned when a payload, plaintext or list exceeds
	// 65535 bytes or entries.
	ErrTooLarge = errors.New("imc: field or payload too large")
	// ErrUnknownMessage is returned for an unregistered id inside an inline
	// field.
	ErrUnknownMessage = errors.New("imc: unknown message id")
	// ErrUnexpectedType is returned when an inline field holds a message of
	// the wrong kind.
	ErrUnexpectedType = errors.New("imc: unexpected message type")
	// ErrNilMessage is returned when encoding a nil message where one is
	// required.
	ErrNilMessage = errors.New("imc: nil message")
)

// Header is the fixed-size prefix of every IMC packet.
type Header struct {
	Sync      uint16
	MgID      uint16
	Size      uint16
	Timestamp float64 // seconds since the Unix epoch
	Src       uint16
	SrcEnt    uint8
	Dst       uint16
	DstEnt    uint8
}

// Encode serializes m as a complete packet. Sync, MgID and Size in h are
// filled in from the message.
func Encode(h Header, m Message) ([]byte, error) {
	if isNil(m) {
		return nil, fmt.Errorf("encode: %w", ErrNilMessage)
	}
	w := &writer{buf: make([]byte, HeaderSize, 256)}
	m.marshal(w)
	if w.err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Abbrev(), w.err)
	}

	size := len(w.buf) - HeaderSize
	if size > maxField {
		return nil, fmt.Errorf("encode %s: payload %d bytes: %w", m.Abbrev(), size, ErrTooLarge)
	}

	h.Sync = SyncNumber
	h.MgID = m.ID()
	h.Size = uint16(size)

	le := binary.LittleEndian
	b := w.buf
	le.PutUint16(b[0:], h.Sync)
	le.PutUint16(b[2:], h.MgID)
	le.PutUint16(b[4:], h.Size)
	le.PutUint64(b[6:], math.Float64bits(h.Timestamp))
	le.PutUint16(b[14:], h.Src)
	b[16] = h.SrcEnt
	le.PutUint16(b[17:], h.Dst)
	b[19] = h.DstEnt

	return le.AppendUint16(b, crc16(b)), nil
}

// Decode parses a complete packet. Messages with an unknown id decode into
// *Raw so callers can still route them by header.
func Decode(b []byte) (Header, Message, error) {
	var h Header
	if len(b) < HeaderSize+FooterSize {
		return h, nil, ErrTruncated
	}

	var order binary.ByteOrder = binary.LittleEndian
	switch binary.LittleEndian.Uint16(b) {
	case SyncNumber:
	case swap16(SyncNumber):
		order = binary.BigEndian
	default:
		return h, nil, ErrSync
	}

	h.Sync = SyncNumber
	h.MgID = order.Uint16(b[2:])
	h.Size = order.Uint16(b[4:])
	h.Timestamp = math.Float64frombits(order.Uint64(b[6:]))
	h.Src = order.Uint16(b[14:])
	h.SrcEnt = b[16]
	h.Dst = order.Uint16(b[17:])
	h.DstEnt = b[19]

	end := HeaderSize + int(h.Size)
	if len(b) < end+FooterSize {
		return h, nil, ErrTruncated
	}
	if got, want := crc16(b[:end]), order.Uint16(b[end:]); got != want {
		return h, nil, fmt.Errorf("%w: computed 0x%04x, packet 0x%04x", ErrChecksum, got, want)
	}

	payload := b[HeaderSize:end]
	m := New(h.MgID)
	if m == nil {
		return h, &Raw{MgID: h.MgID, Payload: append([]byte(nil), payload...)}, nil
	}

	r := &reader{b: payload, order: order}
	m.unmarshal(r)
	if r.err == nil && r.off != len(payload) {
		r.err = fmt.Errorf("%d trailing bytes", len(payload)-r.off)
	}
	if r.err != nil {
		return h, nil, fmt.Errorf("decode %s: %w", m.Abbrev(), r.err)
	}
	return h, m, nil
}

// MarshalInline serializes m the way it is embedded inside another message:
// its id followed by its payload, without header or checksum.
func MarshalInline(m Message) ([]byte, error) {
	w := &writer{}
	w.message(m)
	return w.buf, w.err
}

// UnmarshalInline parses a message serialized with MarshalInline.
func UnmarshalInline(b []byte) (Message, error) {
	r := &reader{b: b, order: binary.LittleEndian}
	m := r.message()
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(b) {
		return nil, fmt.Errorf("imc: %d trailing bytes", len(b)-r.off)
	}
	return m, nil
}

func swap16(v uint16) uint16 { return v<<8 | v>>8 }

// writer accumulates little-endian field encodings. The first error sticks.
type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *writer) i32(v int32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v)) }

func (w *writer) f32(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *writer) f64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *writer) text(s string) {
	if len(s) > maxField {
		w.fail(fmt.Errorf("plaintext of %d bytes: %w", len(s), ErrTooLarge))
		return
	}
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// isNil reports whether m is nil or a typed nil pointer.
func isNil(m Message) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (w *writer) message(m Message) {
	if isNil(m) {
		w.u16(nullMessageID)
		return
	}
	w.u16(m.ID())
	m.marshal(w)
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func writeList[T Message](w *writer, list []T) {
	if len(list) > maxField {
		w.fail(fmt.Errorf("message list of %d entries: %w", len(list), ErrTooLarge))
		return
	}
	w.u16(uint16(len(list)))
	for i, m := range list {
		if isNil(m) {
			w.fail(fmt.Errorf("message list entry %d: %w", i, ErrNilMessage))
			return
		}
		w.message(m)
	}
}

// reader walks a payload. The first error sticks and zero values are
// returned from then on.
type reader struct {
	b     []byte
	off   int
	order binary.ByteOrder
	err   error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = ErrTruncated
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *reader) u8() uint8 {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if p := r.take(2); p != nil {
		return r.order.Uint16(p)
	}
	return 0
}

func (r *reader) i32() int32 {
	if p := r.take(4); p != nil {
		return int32(r.order.Uint32(p))
	}
	return 0
}

func (r *reader) f32() float32 {
	if p := r.take(4); p != nil {
		return math.Float32frombits(r.order.Uint32(p))
	}
	return 0
}

func (r *reader) f64() float64 {
	if p := r.take(8); p != nil {
		return math.Float64frombits(r.order.Uint64(p))
	}
	return 0
}

func (r *reader) text() string {
	n := int(r.u16())
	if p := r.take(n); p != nil {
		return string(p)
	}
	return ""
}

func (r *reader) message() Message {
	id := r.u16()
	if r.err != nil || id == nullMessageID {
		return nil
	}
	m := New(id)
	if m == nil {
		r.err = fmt.Errorf("%w %d in inline field", ErrUnknownMessage, id)
		return nil
	}
	m.unmarshal(r)
	if r.err != nil {
		return nil
	}
	return m
}

func readInline[T Message](r *reader) T {
	var zero T
	m := r.message()
	if m == nil {
		return zero
	}
	t, ok := m.(T)
	if !ok {
		r.err = fmt.Errorf("%w: %s", ErrUnexpectedType, m.Abbrev())
		return zero
	}
	return t
}

func readList[T Message](r *reader) []T {
	n := int(r.u16())
	if r.err != nil || n == 0 {
		return nil
	}
	list := make([]T, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := r.message()
		if r.err != nil {
			break
		}
		t, ok := m.(T)
		if !ok {
			name := "null"
			if m != nil {
				name = m.Abbrev()
			}
			r.err = fmt.Errorf("%w in list: %s", ErrUnexpectedType, name)
			break
		}
		list = append(list, t)
	}
	return list
}

var crcTable = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		c := uint16(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = c>>1 ^ 0xA001
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}()

// crc16 is CRC-16/ARC (polynomial 0x8005, reflected, zero init), the IMC
// packet checksum.
func crc16(b []byte) uint16 {
	var crc uint16
	for _, v := range b {
		crc = crc>>8 ^ crcTable[byte(crc)^v]
	}
	return crc
}
