package geo

// Point is a planar (lat, lon) vertex.
type Point struct {
	Lat float64
	Lon float64
}

// PointInPolygon reports whether (lat, lon) lies inside poly using ray
// casting with latitude and longitude treated as planar coordinates.
// Polygons with fewer than three vertices contain nothing.
func PointInPolygon(lat, lon float64, poly []Point) bool {
	if len(poly) < 3 {
		return false
	}

	inside := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Lon > lon) != (b.Lon > lon) {
			x := (b.Lat-a.Lat)*(lon-a.Lon)/(b.Lon-a.Lon) + a.Lat
			if lat < x {
				inside = !inside
			}
		}
	}
	return inside
}
