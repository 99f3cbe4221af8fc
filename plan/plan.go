// Package plan builds IMC plan specifications with a fluent, cursor-based
// builder: set the location, speed and vertical reference, then append
// maneuvers that inherit them.
package plan

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
)

// ManeuverDone is the default transition condition between consecutive
// maneuvers.
const ManeuverDone = "ManeuverIsDone"

var (
	// ErrEmptyPlan is returned by Spec for a plan without maneuvers.
	ErrEmptyPlan = errors.New("plan has no maneuvers")
	// ErrDuplicateID is recorded when WithID names a maneuver twice.
	ErrDuplicateID = errors.New("duplicate maneuver id")
	// ErrEmptyID is recorded when WithID is given an empty name.
	ErrEmptyID = errors.New("empty maneuver id")
)

// Entry is a named maneuver in plan order.
type Entry struct {
	ID       string
	Maneuver imc.Maneuver
}

// Plan accumulates maneuvers. The exported cursor fields are stamped onto
// every maneuver added after they change.
type Plan struct {
	ID          string
	Description string

	Loc        geo.Geo
	Speed      float64
	SpeedUnits imc.SpeedUnits
	Z          float64
	ZUnits     imc.ZUnits

	entries []Entry
	ids     map[string]struct{}
	count   int
	err     error
}

// New returns an empty plan with the cursor at APDL, 1 m/s, at the surface.
func New(id string) *Plan {
	return &Plan{
		ID:         id,
		Loc:        geo.APDL,
		Speed:      1.0,
		SpeedUnits: imc.SpeedUnitsMetersPS,
		ZUnits:     imc.ZUnitsDepth,
		ids:        make(map[string]struct{}),
		count:      1,
	}
}

// Option customizes a single maneuver as it is added.
type Option func(*options)

type options struct {
	id    string
	named bool
}

// WithID names the maneuver instead of using the next generated id.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
		o.named = true
	}
}

// Err returns the first error encountered while building.
func (p *Plan) Err() error { return p.err }

// Len returns the number of maneuvers.
func (p *Plan) Len() int { return len(p.entries) }

// Maneuvers returns the maneuvers in insertion order.
func (p *Plan) Maneuvers() []Entry {
	return append([]Entry(nil), p.entries...)
}

// Maneuver returns the maneuver with the given id, or nil.
func (p *Plan) Maneuver(id string) imc.Maneuver {
	for _, e := range p.entries {
		if e.ID == id {
			return e.Maneuver
		}
	}
	return nil
}

// Move translates the cursor by the given northing and easting in metres.
func (p *Plan) Move(north, east float64) *Plan {
	p.Loc = p.Loc.TranslatedBy(north, east)
	return p
}

// MoveTo places the cursor at loc.
func (p *Plan) MoveTo(loc geo.Geo) *Plan {
	p.Loc = loc
	return p
}

func (p *Plan) nextID() string {
	if p.count < 1 {
		p.count = 1
	}
	for {
		id := strconv.Itoa(p.count)
		p.count++
		if _, taken := p.ids[id]; !taken {
			return id
		}
	}
}

// add stamps m with the cursor and appends it. It reports false when the
// plan is in an error state or the id is rejected.
func (p *Plan) add(m imc.Maneuver, opts []Option) bool {
	if p.err != nil {
		return false
	}
	if p.ids == nil {
		p.ids = make(map[string]struct{})
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	id := o.id
	switch {
	case o.named && id == "":
		p.err = fmt.Errorf("maneuver %d: %w", len(p.entries)+1, ErrEmptyID)
		return false
	case !o.named:
		id = p.nextID()
	}
	if _, taken := p.ids[id]; taken {
		p.err = fmt.Errorf("maneuver %q: %w", id, ErrDuplicateID)
		return false
	}

	wp := m.Point()
	wp.Lat = p.Loc.Lat.Radians()
	wp.Lon = p.Loc.Lon.Radians()
	wp.Speed = float32(p.Speed)
	wp.SpeedUnits = p.SpeedUnits
	wp.Z = float32(p.Z)
	wp.ZUnits = p.ZUnits

	p.ids[id] = struct{}{}
	p.entries = append(p.entries, Entry{ID: id, Maneuver: m})
	return true
}

// Goto appends a Goto to the cursor location.
func (p *Plan) Goto(opts ...Option) *imc.Goto {
	m := &imc.Goto{}
	p.add(m, opts)
	return m
}

// Loiter appends a circular loiter of the given radius (m) and duration.
func (p *Plan) Loiter(radius float64, duration time.Duration, opts ...Option) *imc.Loiter {
	m := &imc.Loiter{
		Duration: seconds(duration),
		Type:     imc.LoiterCircular,
		Radius:   float32(radius),
	}
	p.add(m, opts)
	return m
}

// YoYo appends a yoyo oscillating between minDepth and maxDepth. The
// cursor's z is replaced by the centre of the band.
func (p *Plan) YoYo(maxDepth, minDepth float64, opts ...Option) *imc.YoYo {
	m := &imc.YoYo{Amplitude: float32(maxDepth - minDepth)}
	if p.add(m, opts) {
		m.Z = float32((maxDepth + minDepth) / 2.0)
	}
	return m
}

// StationKeeping appends a station-keeping maneuver for duration.
func (p *Plan) StationKeeping(duration time.Duration, opts ...Option) *imc.StationKeeping {
	m := &imc.StationKeeping{Duration: seconds(duration)}
	p.add(m, opts)
	return m
}

// PopUp appends a pop-up for duration. With currPos the vehicle surfaces
// where it is instead of at the maneuver location.
func (p *Plan) PopUp(duration time.Duration, currPos bool, opts ...Option) *imc.PopUp {
	m := &imc.PopUp{Duration: seconds(duration)}
	if currPos {
		m.Flags = imc.PopUpCurrPos
	}
	p.add(m, opts)
	return m
}

// Spec assembles the plan: maneuvers in order, each linked to the next by a
// ManeuverIsDone transition, starting at the first one.
func (p *Plan) Spec() (*imc.PlanSpecification, error) {
	if p.err != nil {
		return nil, fmt.Errorf("plan %q: %w", p.ID, p.err)
	}
	if len(p.entries) == 0 {
		return nil, fmt.Errorf("plan %q: %w", p.ID, ErrEmptyPlan)
	}

	spec := &imc.PlanSpecification{
		PlanID:      p.ID,
		Description: p.Description,
		StartManID:  p.entries[0].ID,
		Maneuvers:   make([]*imc.PlanManeuver, 0, len(p.entries)),
		Transitions: make([]*imc.PlanTransition, 0, len(p.entries)-1),
	}
	for i, e := range p.entries {
		spec.Maneuvers = append(spec.Maneuvers, &imc.PlanManeuver{
			ManeuverID: e.ID,
			Data:       e.Maneuver,
		})
		if i > 0 {
			spec.Transitions = append(spec.Transitions, &imc.PlanTransition{
				SourceMan:  p.entries[i-1].ID,
				DestMan:    e.ID,
				Conditions: ManeuverDone,
			})
		}
	}
	return spec, nil
}

func seconds(d time.Duration) uint16 {
	s := d.Seconds()
	switch {
	case s <= 0:
		return 0
	case s >= 65535:
		return 65535
	default:
		return uint16(s + 0.5)
	}
}
