package mission

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
	"github.com/signalsfoundry/imc-missions/plan"
)

// StepError reports a problem with one mission step.
type StepError struct {
	Index int // zero-based
	Type  string
	Field string
	Err   error
}

func (e *StepError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Type, e.Err)
	}
	return fmt.Sprintf("step %d (%s): %s: %v", e.Index+1, e.Type, e.Field, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Build replays the mission on a new plan builder.
func Build(m *Mission) (*plan.Plan, error) {
	if m == nil {
		return nil, errors.New("mission: nil mission")
	}
	if m.ID == "" {
		return nil, errors.New("mission: missing id")
	}
	p := plan.New(m.ID)
	p.Description = m.Description

	if m.Start != nil {
		loc, err := m.Start.resolve()
		if err != nil {
			return nil, fmt.Errorf("mission: start: %w", err)
		}
		p.MoveTo(loc)
	}
	if field, err := applySet(p, m.Speed, m.SpeedUnits, m.Z, m.ZUnits); err != nil {
		return nil, fmt.Errorf("mission: %s: %w", field, err)
	}

	for i, s := range m.Steps {
		if err := apply(p, s); err != nil {
			var se *StepError
			if errors.As(err, &se) {
				se.Index = i
				return nil, se
			}
			return nil, &StepError{Index: i, Type: s.Type, Err: err}
		}
	}
	return p, nil
}

// Spec builds the mission straight to an IMC plan specification.
func Spec(m *Mission) (*imc.PlanSpecification, error) {
	p, err := Build(m)
	if err != nil {
		return nil, err
	}
	return p.Spec()
}

func (pos *Position) resolve() (geo.Geo, error) {
	if pos.Known != "" {
		if pos.Lat != nil || pos.Lon != nil {
			return geo.Geo{}, errors.New("known location and lat/lon are exclusive")
		}
		g, ok := geo.Known(pos.Known)
		if !ok {
			return geo.Geo{}, fmt.Errorf("unknown location %q", pos.Known)
		}
		return g, nil
	}
	if pos.Lat == nil || pos.Lon == nil {
		return geo.Geo{}, errors.New("lat and lon are both required")
	}
	if *pos.Lat < -90 || *pos.Lat > 90 {
		return geo.Geo{}, fmt.Errorf("latitude %v out of range", *pos.Lat)
	}
	if *pos.Lon < -180 || *pos.Lon > 180 {
		return geo.Geo{}, fmt.Errorf("longitude %v out of range", *pos.Lon)
	}
	return geo.FromDegrees(*pos.Lat, *pos.Lon), nil
}

// applySet updates the cursor. It returns the offending field on error.
func applySet(p *plan.Plan, speed *float64, speedUnits string, z *float64, zUnits string) (string, error) {
	if speed != nil {
		if *speed < 0 {
			return "speed", fmt.Errorf("negative speed %v", *speed)
		}
		p.Speed = *speed
	}
	if speedUnits != "" {
		u, err := imc.ParseSpeedUnits(speedUnits)
		if err != nil {
			return "speed_units", err
		}
		p.SpeedUnits = u
	}
	if z != nil {
		p.Z = *z
	}
	if zUnits != "" {
		u, err := imc.ParseZUnits(zUnits)
		if err != nil {
			return "z_units", err
		}
		p.ZUnits = u
	}
	return "", nil
}

func apply(p *plan.Plan, s Step) error {
	var opts []plan.Option
	if s.ID != "" {
		opts = append(opts, plan.WithID(s.ID))
	}
	fail := func(field string, err error) error {
		return &StepError{Type: s.Type, Field: field, Err: err}
	}

	switch s.Type {
	case StepGoto:
		p.Goto(opts...)
	case StepLoiter:
		if s.Radius <= 0 {
			return fail("radius", errors.New("must be positive"))
		}
		p.Loiter(s.Radius, time.Duration(s.Duration), opts...)
	case StepYoYo:
		if s.MaxDepth < s.MinDepth {
			return fail("max_depth", fmt.Errorf("%v is above min_depth %v", s.MaxDepth, s.MinDepth))
		}
		p.YoYo(s.MaxDepth, s.MinDepth, opts...)
	case StepStationKeeping:
		p.StationKeeping(time.Duration(s.Duration), opts...)
	case StepPopUp:
		p.PopUp(time.Duration(s.Duration), s.CurrPos, opts...)
	case StepMove:
		if s.To != nil {
			loc, err := s.To.resolve()
			if err != nil {
				return fail("to", err)
			}
			p.MoveTo(loc)
		}
		p.Move(s.North, s.East)
		return nil
	case StepSet:
		if field, err := applySet(p, s.Speed, s.SpeedUnits, s.Z, s.ZUnits); err != nil {
			return fail(field, err)
		}
		return nil
	case "":
		return fail("type", errors.New("missing"))
	default:
		return fail("type", fmt.Errorf("unknown step type %q", s.Type))
	}
	return p.Err()
}
