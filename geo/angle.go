package geo

import (
	"fmt"
	"math"
)

// Angle is a plane angle stored in radians.
type Angle float64

// Deg constructs an Angle from degrees.
func Deg(d float64) Angle { return Angle(d * math.Pi / 180.0) }

// Rad constructs an Angle from radians.
func Rad(r float64) Angle { return Angle(r) }

// Degrees returns the angle in degrees.
func (a Angle) Degrees() float64 { return float64(a) * 180.0 / math.Pi }

// Radians returns the angle in radians.
func (a Angle) Radians() float64 { return float64(a) }

// Add returns a + b.
func (a Angle) Add(b Angle) Angle { return a + b }

// Sub returns a - b.
func (a Angle) Sub(b Angle) Angle { return a - b }

// Mul scales the angle by k.
func (a Angle) Mul(k float64) Angle { return Angle(float64(a) * k) }

// Div divides the angle by k.
func (a Angle) Div(k float64) Angle { return Angle(float64(a) / k) }

// Neg returns -a.
func (a Angle) Neg() Angle { return -a }

// Normalized wraps the angle into (-π, π].
func (a Angle) Normalized() Angle {
	r := math.Mod(float64(a), 2*math.Pi)
	if r <= -math.Pi {
		r += 2 * math.Pi
	} else if r > math.Pi {
		r -= 2 * math.Pi
	}
	return Angle(r)
}

func (a Angle) String() string {
	return fmt.Sprintf("%.1fº", a.Degrees())
}
