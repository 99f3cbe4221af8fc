package mission

import (
	"fmt"
	"time"
)

// TutorialCount is the number of built-in tutorial missions.
const TutorialCount = 6

func ptr(v float64) *float64 { return &v }

// tutorialSteps lists the steps each tutorial adds to the previous one.
var tutorialSteps = [TutorialCount][]Step{
	{
		{Type: StepGoto},
	},
	{
		{Type: StepMove, North: 100},
		{Type: StepLoiter, Radius: 40, Duration: Duration(3 * time.Minute)},
	},
	{
		{Type: StepMove, East: 100},
		{Type: StepSet, Z: ptr(0), ZUnits: "DEPTH"},
		{Type: StepYoYo, MaxDepth: 12, MinDepth: 2},
	},
	{
		{Type: StepMove, North: -100},
		{Type: StepSet, Z: ptr(0)},
		{Type: StepStationKeeping, Duration: Duration(2 * time.Minute)},
	},
	{
		{Type: StepSet, Z: ptr(3)},
		{Type: StepPopUp, Duration: Duration(30 * time.Second), CurrPos: true},
	},
	{
		{Type: StepMove, North: 50},
		{Type: StepGoto},
		{Type: StepMove, East: 50},
		{Type: StepGoto},
		{Type: StepMove, North: -50},
		{Type: StepGoto},
		{Type: StepMove, To: &Position{Known: "APDL"}},
		{Type: StepGoto, ID: "home"},
	},
}

var tutorialDescriptions = [TutorialCount]string{
	"goto APDL",
	"goto, then loiter 100 m north",
	"goto, loiter, then yoyo between 2 and 12 m depth",
	"goto, loiter, yoyo, then station keeping at the surface",
	"goto, loiter, yoyo, station keeping, then pop up in place",
	"full tutorial with a square survey back to the start",
}

// Tutorial returns tutorial n (1-based). Each tutorial repeats the previous
// one and appends more maneuvers.
func Tutorial(n int) (*Mission, error) {
	if n < 1 || n > TutorialCount {
		return nil, fmt.Errorf("mission: tutorial %d does not exist (1-%d)", n, TutorialCount)
	}
	m := &Mission{
		ID:          fmt.Sprintf("tutorial-%d", n),
		Description: tutorialDescriptions[n-1],
		Start:       &Position{Known: "APDL"},
		Speed:       ptr(1.2),
		SpeedUnits:  "METERS_PS",
		Z:           ptr(5),
		ZUnits:      "ALTITUDE",
	}
	for i := 0; i < n; i++ {
		m.Steps = append(m.Steps, tutorialSteps[i]...)
	}
	return m, nil
}

// Tutorials returns all tutorial missions in order.
func Tutorials() []*Mission {
	out := make([]*Mission, 0, TutorialCount)
	for n := 1; n <= TutorialCount; n++ {
		m, _ := Tutorial(n)
		out = append(out, m)
	}
	return out
}
