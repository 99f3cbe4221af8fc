package imc

import "strings"

var constructors = map[uint16]func() Message{
	150: func() Message { return &Heartbeat{} },
	151: func() Message { return &Announce{} },
	350: func() Message { return &EstimatedState{} },
	450: func() Message { return &Goto{} },
	451: func() Message { return &PopUp{} },
	453: func() Message { return &Loiter{} },
	459: func() Message { return &YoYo{} },
	461: func() Message { return &StationKeeping{} },
	550: func() Message { return &Abort{} },
	551: func() Message { return &PlanSpecification{} },
	552: func() Message { return &PlanManeuver{} },
	553: func() Message { return &PlanTransition{} },
	559: func() Message { return &PlanControl{} },
	560: func() Message { return &PlanControlState{} },
	561: func() Message { return &PlanVariable{} },
}

// Names of common messages that decode as *Raw.
var foreignNames = map[uint16]string{
	1:   "EntityState",
	3:   "EntityInfo",
	5:   "EntityList",
	500: "VehicleState",
	556: "PlanDB",
}

var byAbbrev = func() map[string]uint16 {
	m := make(map[string]uint16, len(constructors))
	for id, fn := range constructors {
		m[strings.ToLower(fn().Abbrev())] = id
	}
	return m
}()

// New returns an empty message for id, or nil when the id is not supported.
func New(id uint16) Message {
	if fn, ok := constructors[id]; ok {
		return fn()
	}
	return nil
}

// NewByAbbrev returns an empty message by its abbreviated name
// (case-insensitive), or nil.
func NewByAbbrev(name string) Message {
	if id, ok := byAbbrev[strings.ToLower(name)]; ok {
		return New(id)
	}
	return nil
}

// AbbrevOf returns the abbreviated name of id, or "" if unknown.
func AbbrevOf(id uint16) string {
	if m := New(id); m != nil {
		return m.Abbrev()
	}
	return foreignNames[id]
}

// IsManeuver reports whether id names a plan maneuver.
func IsManeuver(id uint16) bool {
	_, ok := New(id).(Maneuver)
	return ok
}
