package plan

import (
	"time"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
)

// Location returns the position of a maneuver.
func Location(m imc.Maneuver) geo.Geo {
	wp := m.Point()
	return geo.Geo{Lat: geo.Rad(wp.Lat), Lon: geo.Rad(wp.Lon)}
}

// Length returns the horizontal distance in metres travelled between
// consecutive maneuver locations.
func (p *Plan) Length() float64 {
	var total float64
	for i := 1; i < len(p.entries); i++ {
		total += Location(p.entries[i-1].Maneuver).Distance(Location(p.entries[i].Maneuver))
	}
	return total
}

// EstimatedDuration estimates the plan execution time: the transit of each
// leg at the destination maneuver's speed plus the time spent holding in
// loiters, station keeping and pop-ups. The second result is false when a
// leg uses a speed unit other than metres per second or a zero speed, in
// which case that leg's transit is not counted.
func (p *Plan) EstimatedDuration() (time.Duration, bool) {
	var total time.Duration
	exact := true
	for i, e := range p.entries {
		total += holdTime(e.Maneuver)
		if i == 0 {
			continue
		}
		dist := Location(p.entries[i-1].Maneuver).Distance(Location(e.Maneuver))
		if dist == 0 {
			continue
		}
		wp := e.Maneuver.Point()
		if wp.SpeedUnits != imc.SpeedUnitsMetersPS || wp.Speed <= 0 {
			exact = false
			continue
		}
		total += time.Duration(dist / float64(wp.Speed) * float64(time.Second))
	}
	return total, exact
}

func holdTime(m imc.Maneuver) time.Duration {
	var s uint16
	switch v := m.(type) {
	case *imc.Loiter:
		s = v.Duration
	case *imc.StationKeeping:
		s = v.Duration
	case *imc.PopUp:
		s = v.Duration
	}
	return time.Duration(s) * time.Second
}
