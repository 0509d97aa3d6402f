// Package polyline encodes route geometry with Google's polyline algorithm.
// The 2D form is the standard format documented at
// https://developers.google.com/maps/documentation/utilities/polylinealgorithm.
// The 3D form appends an altitude delta to every point.
package polyline

import (
	"errors"
	"math"
)

// ErrTruncated indicates an encoded string that ends inside a value or point.
var ErrTruncated = errors.New("polyline: truncated input")

const (
	// coordFactor gives 5 decimal places of latitude and longitude.
	coordFactor = 1e5
	// altFactor gives centimeter altitude resolution.
	altFactor = 1e2
)

// Coordinate is a point along a route. Alt is meters and is only carried by
// the 3D encoding.
type Coordinate struct {
	Lat float64
	Lon float64
	Alt float64
}

// Encode encodes the horizontal part of coords.
func Encode(coords []Coordinate) string {
	return encode(coords, false)
}

// Encode3D encodes coords including altitude.
func Encode3D(coords []Coordinate) string {
	return encode(coords, true)
}

// Decode decodes a 2D polyline. Altitudes of the result are zero.
func Decode(encoded string) ([]Coordinate, error) {
	return decode(encoded, false)
}

// Decode3D decodes a polyline produced by Encode3D.
func Decode3D(encoded string) ([]Coordinate, error) {
	return decode(encoded, true)
}

func encode(coords []Coordinate, withAlt bool) string {
	if len(coords) == 0 {
		return ""
	}
	perPoint := 8
	if withAlt {
		perPoint = 12
	}
	buf := make([]byte, 0, len(coords)*perPoint)

	var prevLat, prevLon, prevAlt int
	for _, c := range coords {
		lat := scale(c.Lat, coordFactor)
		lon := scale(c.Lon, coordFactor)
		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lon-prevLon)
		prevLat, prevLon = lat, lon

		if withAlt {
			alt := scale(c.Alt, altFactor)
			buf = appendValue(buf, alt-prevAlt)
			prevAlt = alt
		}
	}
	return string(buf)
}

func decode(encoded string, withAlt bool) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}
	var (
		coords        []Coordinate
		lat, lon, alt int
		index         int
		delta         int
		err           error
	)
	for index < len(encoded) {
		if delta, index, err = readValue(encoded, index); err != nil {
			return nil, err
		}
		lat += delta
		if index >= len(encoded) {
			return nil, ErrTruncated
		}
		if delta, index, err = readValue(encoded, index); err != nil {
			return nil, err
		}
		lon += delta

		c := Coordinate{Lat: float64(lat) / coordFactor, Lon: float64(lon) / coordFactor}
		if withAlt {
			if index >= len(encoded) {
				return nil, ErrTruncated
			}
			if delta, index, err = readValue(encoded, index); err != nil {
				return nil, err
			}
			alt += delta
			c.Alt = float64(alt) / altFactor
		}
		coords = append(coords, c)
	}
	return coords, nil
}

func scale(v, factor float64) int {
	return int(math.Round(v * factor))
}

// appendValue writes one zigzag-encoded value in 5-bit chunks.
func appendValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}
	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// readValue decodes one value starting at index and returns the next index.
func readValue(encoded string, index int) (int, int, error) {
	var result, shift int
	for {
		if index >= len(encoded) {
			return 0, index, ErrTruncated
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

const earthRadiusMeters = 6371000

// Length returns the path length in meters. Altitude changes are included
// when includeAlt is set.
func Length(coords []Coordinate, includeAlt bool) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		h := haversine(coords[i-1], coords[i])
		if includeAlt {
			h = math.Hypot(h, coords[i].Alt-coords[i-1].Alt)
		}
		total += h
	}
	return total
}

func haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
