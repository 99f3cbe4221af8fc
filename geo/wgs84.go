package geo

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (metres)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84B  = wgs84A * (1 - wgs84F) // semi-minor axis (metres)
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

type ecef struct {
	x, y, z float64
}

// toECEF converts geodetic degrees and a depth (metres, positive down) to
// ECEF metres.
func toECEF(latDeg, lonDeg, depth float64) ecef {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0
	h := -depth

	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ecef{
		x: (n + h) * cosLat * cosLon,
		y: (n + h) * cosLat * sinLon,
		z: (n*(1-wgs84E2) + h) * sinLat,
	}
}

// toGeodetic converts ECEF metres back to geodetic degrees and depth.
func toGeodetic(p ecef) (latDeg, lonDeg, depth float64) {
	lon := math.Atan2(p.y, p.x)
	r := math.Hypot(p.x, p.y)

	// Bowring initial estimate, refined until the latitude settles.
	lat := math.Atan2(p.z, r*(1-wgs84E2))
	var n float64
	for i := 0; i < 10; i++ {
		sinLat := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		next := math.Atan2(p.z+wgs84E2*n*sinLat, r)
		if math.Abs(next-lat) < 1e-15 {
			lat = next
			break
		}
		lat = next
	}

	sinLat, cosLat := math.Sincos(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var h float64
	if math.Abs(cosLat) > 1e-10 {
		h = r/cosLat - n
	} else {
		h = math.Abs(p.z) - wgs84B
	}

	return lat * 180.0 / math.Pi, lon * 180.0 / math.Pi, -h
}

// Displace translates the position (latDeg, lonDeg, depth) by a local
// north/east/down offset in metres and returns the resulting position.
func Displace(latDeg, lonDeg, depth, north, east, down float64) (float64, float64, float64) {
	p := toECEF(latDeg, lonDeg, depth)

	sinLat, cosLat := math.Sincos(latDeg * math.Pi / 180.0)
	sinLon, cosLon := math.Sincos(lonDeg * math.Pi / 180.0)

	p.x += -sinLat*cosLon*north - sinLon*east - cosLat*cosLon*down
	p.y += -sinLat*sinLon*north + cosLon*east - cosLat*sinLon*down
	p.z += cosLat*north - sinLat*down

	return toGeodetic(p)
}

// Displacement returns the north/east/down offset in metres of the second
// position relative to the first.
func Displacement(lat1, lon1, depth1, lat2, lon2, depth2 float64) (float64, float64, float64) {
	p1 := toECEF(lat1, lon1, depth1)
	p2 := toECEF(lat2, lon2, depth2)

	dx := p2.x - p1.x
	dy := p2.y - p1.y
	dz := p2.z - p1.z

	sinLat, cosLat := math.Sincos(lat1 * math.Pi / 180.0)
	sinLon, cosLon := math.Sincos(lon1 * math.Pi / 180.0)

	north := -sinLat*cosLon*dx - sinLat*sinLon*dy + cosLat*dz
	east := -sinLon*dx + cosLon*dy
	down := -cosLat*cosLon*dx - cosLat*sinLon*dy - sinLat*dz
	return north, east, down
}
