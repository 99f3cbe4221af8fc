package imc

import (
	"fmt"
	"strconv"
	"strings"
)

func enumName(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return strconv.Itoa(v)
}

func parseEnum(kind string, names []string, s string) (int, error) {
	s = strings.TrimSpace(s)
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return i, nil
		}
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 && v < len(names) {
		return v, nil
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

type flagName struct {
	bit  uint16
	name string
}

func flagsString(flags []flagName, v uint16) string {
	if v == 0 {
		return "0"
	}
	var parts []string
	for _, f := range flags {
		if v&f.bit != 0 {
			parts = append(parts, f.name)
			v &^= f.bit
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", v))
	}
	return strings.Join(parts, "|")
}

// ZUnits selects the vertical reference of a maneuver's z field.
type ZUnits uint8

const (
	ZUnitsNone ZUnits = iota
	ZUnitsDepth
	ZUnitsAltitude
	ZUnitsHeight
)

var zUnitsNames = []string{"NONE", "DEPTH", "ALTITUDE", "HEIGHT"}

func (z ZUnits) String() string { return enumName(zUnitsNames, int(z)) }

// ParseZUnits parses a symbolic z-units name such as "DEPTH".
func ParseZUnits(s string) (ZUnits, error) {
	v, err := parseEnum("z units", zUnitsNames, s)
	return ZUnits(v), err
}

// SpeedUnits selects how a maneuver's speed field is interpreted.
type SpeedUnits uint8

const (
	SpeedUnitsMetersPS SpeedUnits = iota
	SpeedUnitsRPM
	SpeedUnitsPercentage
)

var speedUnitsNames = []string{"METERS_PS", "RPM", "PERCENTAGE"}

func (s SpeedUnits) String() string { return enumName(speedUnitsNames, int(s)) }

// ParseSpeedUnits parses a symbolic speed-units name such as "METERS_PS".
func ParseSpeedUnits(s string) (SpeedUnits, error) {
	v, err := parseEnum("speed units", speedUnitsNames, s)
	return SpeedUnits(v), err
}

// LoiterType is the loiter pattern.
type LoiterType uint8

const (
	LoiterDefault LoiterType = iota
	LoiterCircular
	LoiterRacetrack
	LoiterEight
	LoiterHover
)

var loiterTypeNames = []string{"DEFAULT", "CIRCULAR", "RACETRACK", "EIGHT", "HOVER"}

func (t LoiterType) String() string { return enumName(loiterTypeNames, int(t)) }

// ParseLoiterType parses a loiter type name.
func ParseLoiterType(s string) (LoiterType, error) {
	v, err := parseEnum("loiter type", loiterTypeNames, s)
	return LoiterType(v), err
}

// LoiterDirection is the loiter circulation direction.
type LoiterDirection uint8

const (
	LoiterVehicleDependent LoiterDirection = iota
	LoiterClockwise
	LoiterCounterClockwise
	LoiterIntoWind
)

var loiterDirectionNames = []string{"VDEP", "CLOCKW", "CCLOCKW", "IWINDCURR"}

func (d LoiterDirection) String() string { return enumName(loiterDirectionNames, int(d)) }

// ParseLoiterDirection parses a loiter direction name.
func ParseLoiterDirection(s string) (LoiterDirection, error) {
	v, err := parseEnum("loiter direction", loiterDirectionNames, s)
	return LoiterDirection(v), err
}

// PopUpFlags is the PopUp flags bitfield.
type PopUpFlags uint8

const (
	PopUpCurrPos       PopUpFlags = 0x01
	PopUpWaitAtSurface PopUpFlags = 0x02
	PopUpStationKeep   PopUpFlags = 0x04
)

var popUpFlagNames = []flagName{
	{uint16(PopUpCurrPos), "CURR_POS"},
	{uint16(PopUpWaitAtSurface), "WAIT_AT_SURFACE"},
	{uint16(PopUpStationKeep), "STATION_KEEP"},
}

func (f PopUpFlags) String() string { return flagsString(popUpFlagNames, uint16(f)) }

// SystemType classifies an IMC system.
type SystemType uint8

const (
	SystemCCU SystemType = iota
	SystemHumanSensor
	SystemUUV
	SystemUSV
	SystemUAV
	SystemUGV
	SystemStaticSensor
	SystemMobileSensor
	SystemWSN
)

var systemTypeNames = []string{
	"CCU", "HUMANSENSOR", "UUV", "USV", "UAV", "UGV", "STATICSENSOR", "MOBILESENSOR", "WSN",
}

func (t SystemType) String() string { return enumName(systemTypeNames, int(t)) }

// ParseSystemType parses a system type name such as "UUV".
func ParseSystemType(s string) (SystemType, error) {
	v, err := parseEnum("system type", systemTypeNames, s)
	return SystemType(v), err
}

// PlanControlType is the request/reply discriminator of PlanControl.
type PlanControlType uint8

const (
	PlanControlRequest PlanControlType = iota
	PlanControlSuccess
	PlanControlFailure
	PlanControlInProgress
)

var planControlTypeNames = []string{"REQUEST", "SUCCESS", "FAILURE", "IN_PROGRESS"}

func (t PlanControlType) String() string { return enumName(planControlTypeNames, int(t)) }

// PlanControlOp is the operation requested by a PlanControl.
type PlanControlOp uint8

const (
	PlanControlStart PlanControlOp = iota
	PlanControlStop
	PlanControlLoad
	PlanControlGet
)

var planControlOpNames = []string{"START", "STOP", "LOAD", "GET"}

func (o PlanControlOp) String() string { return enumName(planControlOpNames, int(o)) }

// ParsePlanControlOp parses an operation name such as "START".
func ParsePlanControlOp(s string) (PlanControlOp, error) {
	v, err := parseEnum("plan control op", planControlOpNames, s)
	return PlanControlOp(v), err
}

// PlanControlFlags is the PlanControl flags bitfield.
type PlanControlFlags uint16

const (
	PlanControlCalibrate    PlanControlFlags = 0x0001
	PlanControlIgnoreErrors PlanControlFlags = 0x0002
)

var planControlFlagNames = []flagName{
	{uint16(PlanControlCalibrate), "CALIBRATE"},
	{uint16(PlanControlIgnoreErrors), "IGNORE_ERRORS"},
}

func (f PlanControlFlags) String() string { return flagsString(planControlFlagNames, uint16(f)) }

// PlanState is the executor state reported by PlanControlState.
type PlanState uint8

const (
	PlanBlocked PlanState = iota
	PlanReady
	PlanInitializing
	PlanExecuting
)

var planStateNames = []string{"BLOCKED", "READY", "INITIALIZING", "EXECUTING"}

func (s PlanState) String() string { return enumName(planStateNames, int(s)) }

// PlanOutcome is the outcome of the last executed plan.
type PlanOutcome uint8

const (
	PlanOutcomeNone PlanOutcome = iota
	PlanOutcomeSuccess
	PlanOutcomeFailure
)

var planOutcomeNames = []string{"NONE", "SUCCESS", "FAILURE"}

func (o PlanOutcome) String() string { return enumName(planOutcomeNames, int(o)) }

// VariableType is the value type of a PlanVariable.
type VariableType uint8

const (
	VariableBoolean VariableType = iota
	VariableNumber
	VariableText
	VariableMessage
)

var variableTypeNames = []string{"BOOLEAN", "NUMBER", "TEXT", "MESSAGE"}

func (t VariableType) String() string { return enumName(variableTypeNames, int(t)) }

// VariableAccess is the access mode of a PlanVariable.
type VariableAccess uint8

const (
	VariableInput VariableAccess = iota
	VariableOutput
	VariableLocal
)

var variableAccessNames = []string{"INPUT", "OUTPUT", "LOCAL"}

func (a VariableAccess) String() string { return enumName(variableAccessNames, int(a)) }
