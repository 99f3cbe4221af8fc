package plan

import (
	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/imc"
)

// StartRequest asks a vehicle to start spec, calibrating first. A nil spec
// yields a request with no argument and no plan id.
func StartRequest(reqID uint16, spec *imc.PlanSpecification) *imc.PlanControl {
	pc := planRequest(reqID, imc.PlanControlStart, "start", spec)
	pc.Flags = imc.PlanControlCalibrate
	return pc
}

// LoadRequest asks a vehicle to load spec without starting it. A nil spec
// yields a request with no argument and no plan id.
func LoadRequest(reqID uint16, spec *imc.PlanSpecification) *imc.PlanControl {
	return planRequest(reqID, imc.PlanControlLoad, "load", spec)
}

func planRequest(reqID uint16, op imc.PlanControlOp, verb string, spec *imc.PlanSpecification) *imc.PlanControl {
	pc := &imc.PlanControl{
		Type:      imc.PlanControlRequest,
		Op:        op,
		RequestID: reqID,
		Info:      verb,
	}
	if spec != nil {
		pc.PlanID = spec.PlanID
		pc.Arg = spec
		pc.Info = verb + " " + spec.PlanID
	}
	return pc
}

// StopRequest asks a vehicle to stop the named plan.
func StopRequest(reqID uint16, planID string) *imc.PlanControl {
	return &imc.PlanControl{
		Type:      imc.PlanControlRequest,
		Op:        imc.PlanControlStop,
		RequestID: reqID,
		PlanID:    planID,
		Info:      "stop " + planID,
	}
}

// GotoRequest starts a single-maneuver quick plan that drives the vehicle to
// dest at depth z and the given speed in m/s.
func GotoRequest(reqID uint16, dest geo.Geo, z, speed float64, info string) *imc.PlanControl {
	return &imc.PlanControl{
		Type:      imc.PlanControlRequest,
		Op:        imc.PlanControlStart,
		RequestID: reqID,
		Flags:     imc.PlanControlCalibrate,
		Info:      info,
		Arg: &imc.Goto{
			Waypoint: imc.Waypoint{
				Lat:        dest.Lat.Radians(),
				Lon:        dest.Lon.Radians(),
				Z:          float32(z),
				ZUnits:     imc.ZUnitsDepth,
				Speed:      float32(speed),
				SpeedUnits: imc.SpeedUnitsMetersPS,
			},
		},
	}
}
