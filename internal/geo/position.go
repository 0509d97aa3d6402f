// Package geo provides the geometry primitives shared by the airspace model,
// the spatial index and the collision engine.
package geo

import (
	"math"
	"time"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// Position is a point in 3D airspace. Latitude and longitude are degrees,
// altitude is meters above ground.
type Position struct {
	Lat       float64
	Lon       float64
	Alt       float64
	Timestamp time.Time
}

// NewPosition returns a position stamped with the given time.
func NewPosition(lat, lon, alt float64, ts time.Time) Position {
	return Position{Lat: lat, Lon: lon, Alt: alt, Timestamp: ts}
}

// HorizontalDistance returns the great-circle distance to other in meters.
func (p Position) HorizontalDistance(other Position) float64 {
	return Haversine(p.Lat, p.Lon, other.Lat, other.Lon)
}

// VerticalDistance returns the absolute altitude difference in meters.
func (p Position) VerticalDistance(other Position) float64 {
	return math.Abs(p.Alt - other.Alt)
}

// Distance3D combines horizontal and vertical distance.
func (p Position) Distance3D(other Position) float64 {
	h := p.HorizontalDistance(other)
	v := p.VerticalDistance(other)
	return math.Sqrt(h*h + v*v)
}

// Equal reports whether both positions share the same coordinates.
// Timestamps are ignored.
func (p Position) Equal(other Position) bool {
	return p.Lat == other.Lat && p.Lon == other.Lon && p.Alt == other.Alt
}

// Valid reports whether p has finite coordinates, latitude in [-90, 90] and
// longitude in [-180, 180].
func (p Position) Valid() bool {
	return Finite(p.Lat) && Finite(p.Lon) && Finite(p.Alt) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Finite reports whether f is neither NaN nor infinite.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// WithAltitude returns a copy of p at altitude alt.
func (p Position) WithAltitude(alt float64) Position {
	p.Alt = alt
	return p
}

// Project extrapolates p along heading (degrees clockwise from north) at
// speed m/s for the given horizon using a flat-earth approximation.
// A zero speed or a non-positive horizon returns p unchanged.
func (p Position) Project(heading, speed float64, horizon time.Duration) Position {
	secs := horizon.Seconds()
	if speed == 0 || secs <= 0 {
		return p
	}

	dist := speed * secs
	rad := heading * math.Pi / 180
	north := dist * math.Cos(rad)
	east := dist * math.Sin(rad)

	dLat := north / EarthRadiusMeters * 180 / math.Pi
	dLon := east / (EarthRadiusMeters * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi

	out := p
	out.Lat += dLat
	out.Lon += dLon
	if !p.Timestamp.IsZero() {
		out.Timestamp = p.Timestamp.Add(horizon)
	}
	return out
}

// Haversine calculates the distance between two points in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// NormalizeHeading maps any angle in degrees into [0, 360).
func NormalizeHeading(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}
