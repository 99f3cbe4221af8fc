// Package geo holds the geographic primitives used to lay out mission plans:
// angles, latitude/longitude positions, and WGS-84 offsets between them.
package geo

import (
	"fmt"
	"math"
)

// Geo is a latitude/longitude position on the WGS-84 ellipsoid.
type Geo struct {
	Lat Angle
	Lon Angle
}

// Well-known reference locations.
var (
	FEUP = Geo{Lat: Deg(41.1781918), Lon: Deg(-8.5954308)}
	APDL = Geo{Lat: Deg(41.185242), Lon: Deg(-8.704803)}
)

var known = map[string]Geo{
	"FEUP": FEUP,
	"APDL": APDL,
}

// Known looks up a well-known location by name.
func Known(name string) (Geo, bool) {
	g, ok := known[name]
	return g, ok
}

// FromDegrees builds a Geo from latitude and longitude in degrees.
func FromDegrees(latDeg, lonDeg float64) Geo {
	return Geo{Lat: Deg(latDeg), Lon: Deg(lonDeg)}
}

// Offsets returns the north and east distance in metres from g to other.
func (g Geo) Offsets(other Geo) (north, east float64) {
	north, east, _ = Displacement(
		g.Lat.Degrees(), g.Lon.Degrees(), 0,
		other.Lat.Degrees(), other.Lon.Degrees(), 0,
	)
	return north, east
}

// Distance returns the horizontal distance in metres from g to other.
func (g Geo) Distance(other Geo) float64 {
	n, e := g.Offsets(other)
	return math.Hypot(n, e)
}

// Bearing returns the direction from g to other, measured clockwise from
// north.
func (g Geo) Bearing(other Geo) Angle {
	n, e := g.Offsets(other)
	return Rad(math.Atan2(e, n))
}

// TranslatedBy returns g moved by the given northing and easting in metres.
func (g Geo) TranslatedBy(north, east float64) Geo {
	lat, lon, _ := Displace(g.Lat.Degrees(), g.Lon.Degrees(), 0, north, east, 0)
	return FromDegrees(lat, lon)
}

func (g Geo) String() string {
	return fmt.Sprintf("Geo(%v, %v)", g.Lat.Degrees(), g.Lon.Degrees())
}
