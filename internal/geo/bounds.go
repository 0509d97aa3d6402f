package geo

import "math"

// Bounds is an axis-aligned latitude/longitude box.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Valid reports whether the box has positive extent on both axes.
func (b Bounds) Valid() bool {
	return b.MaxLat > b.MinLat && b.MaxLon > b.MinLon
}

// Contains reports whether (lat, lon) lies in the box, edges inclusive.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Intersects reports whether two boxes overlap.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat &&
		b.MinLon <= o.MaxLon && o.MinLon <= b.MaxLon
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Point {
	return Point{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Clamp pulls (lat, lon) onto the nearest point inside the box.
func (b Bounds) Clamp(lat, lon float64) (float64, float64) {
	return math.Min(math.Max(lat, b.MinLat), b.MaxLat), math.Min(math.Max(lon, b.MinLon), b.MaxLon)
}

// metersPerDegreeLat is the length of one degree of latitude on the mean sphere.
const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

// Around returns a box that encloses the circle of radius meters centred on
// (lat, lon). It is a fast-reject filter, not an exact shape.
func Around(lat, lon, radius float64) Bounds {
	dLat := radius / metersPerDegreeLat
	cos := math.Cos(lat * math.Pi / 180)
	dLon := 180.0
	if cos > 1e-9 {
		dLon = math.Min(dLat/cos, 180)
	}
	return Bounds{MinLat: lat - dLat, MinLon: lon - dLon, MaxLat: lat + dLat, MaxLon: lon + dLon}
}
