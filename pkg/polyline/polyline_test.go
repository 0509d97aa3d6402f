package polyline

import (
	"errors"
	"math"
	"testing"
)

func TestDecode_ReferencePolyline(t *testing.T) {
	tests := []struct {
		name     string
		encoded  string
		expected []Coordinate
	}{
		{
			name:     "single point",
			encoded:  "_p~iF~ps|U",
			expected: []Coordinate{{Lat: 38.5, Lon: -120.2}},
		},
		{
			name:    "three points",
			encoded: "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
				{Lat: 40.7, Lon: -120.95},
				{Lat: 43.252, Lon: -126.453},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.encoded)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("Decode() returned %d points, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if !coordsEqual(got[i], tt.expected[i], 1e-5) {
					t.Errorf("point %d = %+v, want %+v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestEncode_ReferencePolyline(t *testing.T) {
	coords := []Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	if got := Encode(coords); got != "_p~iF~ps|U_ulLnnqC_mqNvxq`@" {
		t.Errorf("Encode() = %q", got)
	}
}

func TestEncode_IgnoresAltitude(t *testing.T) {
	flat := []Coordinate{{Lat: 52.37, Lon: 4.89}}
	high := []Coordinate{{Lat: 52.37, Lon: 4.89, Alt: 120}}
	if Encode(flat) != Encode(high) {
		t.Error("2D encoding should not depend on altitude")
	}
}

func TestEmptyInput(t *testing.T) {
	if got := Encode(nil); got != "" {
		t.Errorf("Encode(nil) = %q, want empty", got)
	}
	got, err := Decode("")
	if err != nil || got != nil {
		t.Errorf("Decode(\"\") = %v, %v; want nil, nil", got, err)
	}
}

func TestRoundTrip3D(t *testing.T) {
	coords := []Coordinate{
		{Lat: 52.3676, Lon: 4.9041, Alt: 60},
		{Lat: 52.3702, Lon: 4.8952, Alt: 90.25},
		{Lat: 52.3731, Lon: 4.8922, Alt: 30.5},
		{Lat: 52.3731, Lon: 4.8922, Alt: 0},
	}

	got, err := Decode3D(Encode3D(coords))
	if err != nil {
		t.Fatalf("Decode3D() error = %v", err)
	}
	if len(got) != len(coords) {
		t.Fatalf("got %d points, want %d", len(got), len(coords))
	}
	for i := range coords {
		if !coordsEqual(got[i], coords[i], 1e-5) || math.Abs(got[i].Alt-coords[i].Alt) > 0.01 {
			t.Errorf("point %d = %+v, want %+v", i, got[i], coords[i])
		}
	}
}

func TestDecode_Truncated(t *testing.T) {
	encoded := Encode3D([]Coordinate{{Lat: 52.1, Lon: 4.3, Alt: 100}})

	tests := []struct {
		name string
		fn   func(string) ([]Coordinate, error)
		in   string
	}{
		{"2D missing longitude", Decode, "_p~iF"},
		{"2D cut inside value", Decode, "_p~iF~ps"},
		{"3D missing altitude", Decode3D, Encode([]Coordinate{{Lat: 52.1, Lon: 4.3}})},
		{"3D cut inside value", Decode3D, encoded[:len(encoded)-1] + "_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(tt.in); !errors.Is(err, ErrTruncated) {
				t.Errorf("error = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestLength(t *testing.T) {
	// One degree of latitude along a meridian.
	coords := []Coordinate{{Lat: 0, Lon: 0, Alt: 0}, {Lat: 1, Lon: 0, Alt: 1000}}
	horizontal := Length(coords, false)
	if math.Abs(horizontal-111195) > 1 {
		t.Errorf("Length() = %.1f, want ~111195", horizontal)
	}
	slant := Length(coords, true)
	if want := math.Hypot(horizontal, 1000); math.Abs(slant-want) > 1e-6 {
		t.Errorf("Length(includeAlt) = %.3f, want %.3f", slant, want)
	}
	if Length(coords[:1], true) != 0 {
		t.Error("a single point has no length")
	}
}

func coordsEqual(a, b Coordinate, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) < tolerance && math.Abs(a.Lon-b.Lon) < tolerance
}

func BenchmarkEncode3D(b *testing.B) {
	coords := make([]Coordinate, 200)
	for i := range coords {
		coords[i] = Coordinate{Lat: 52 + float64(i)*0.001, Lon: 4 + float64(i)*0.001, Alt: float64(i % 120)}
	}
	b.ResetTimer()
	for range b.N {
		Encode3D(coords)
	}
}
