package airspace_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/geo"
)

var testBounds = geo.Bounds{MinLat: 40.70, MinLon: -74.02, MaxLat: 40.80, MaxLon: -73.93}

func newModel(t *testing.T) *airspace.Model {
	t.Helper()
	m, err := airspace.NewModel("test", "Test", testBounds)
	require.NoError(t, err)
	return m
}

func TestLayerFromAltitude(t *testing.T) {
	tests := []struct {
		alt   float64
		want  airspace.Layer
		found bool
	}{
		{alt: 0, want: airspace.LayerLow, found: true},
		{alt: 59.99, want: airspace.LayerLow, found: true},
		{alt: 60, want: airspace.LayerMedium, found: true},
		{alt: 119.99, want: airspace.LayerMedium, found: true},
		{alt: 120, want: airspace.LayerHigh, found: true},
		{alt: 179.99, want: airspace.LayerHigh, found: true},
		{alt: 180, found: false},
		{alt: -1, found: false},
	}

	for _, tt := range tests {
		got, ok := airspace.LayerFromAltitude(tt.alt)
		assert.Equal(t, tt.found, ok, "altitude %v", tt.alt)
		if tt.found {
			assert.Equal(t, tt.want, got, "altitude %v", tt.alt)
		}
	}
}

func TestLayerAttributes(t *testing.T) {
	assert.Equal(t, "LOW", airspace.LayerLow.String())
	assert.Equal(t, "HIGH", airspace.LayerHigh.String())
	assert.Equal(t, 15.0, airspace.LayerLow.RecommendedSpeed())
	assert.Equal(t, 25.0, airspace.LayerMedium.RecommendedSpeed())
	assert.Equal(t, 35.0, airspace.LayerHigh.RecommendedSpeed())
	assert.Equal(t, 90.0, airspace.LayerMedium.CenterAltitude())

	layers := airspace.Layers()
	for i := 1; i < len(layers); i++ {
		assert.Equal(t, layers[i-1].MaxAltitude(), layers[i].MinAltitude(), "layers must be contiguous")
	}
}

func TestObstacleContains(t *testing.T) {
	center := geo.Position{Lat: 40.75, Lon: -73.98, Alt: 0}
	north := func(m float64) geo.Position {
		return geo.Position{Lat: 40.75 + m/111195, Lon: -73.98}
	}

	t.Run("circle", func(t *testing.T) {
		o := airspace.Obstacle{ID: "o", Position: center, Height: 100, Footprint: airspace.CircleFootprint{Radius: 50}}
		assert.True(t, o.Contains(north(40).WithAltitude(50)))
		assert.True(t, o.Contains(north(40).WithAltitude(100)), "top is inclusive")
		assert.False(t, o.Contains(north(40).WithAltitude(101)))
		assert.False(t, o.Contains(north(60).WithAltitude(50)))
	})

	t.Run("rectangle uses circumscribed radius", func(t *testing.T) {
		o := airspace.Obstacle{ID: "o", Position: center, Height: 100, Footprint: airspace.RectFootprint{Width: 60, Length: 80}}
		assert.Equal(t, 50.0, o.Footprint.EffectiveRadius())
		assert.True(t, o.Contains(north(45).WithAltitude(10)))
		assert.False(t, o.Contains(north(55).WithAltitude(10)))
	})

	t.Run("zero dimension contains nothing", func(t *testing.T) {
		for _, fp := range []airspace.Footprint{
			airspace.CircleFootprint{},
			airspace.RectFootprint{Width: 10},
			nil,
		} {
			o := airspace.Obstacle{ID: "o", Position: center, Height: 100, Footprint: fp}
			assert.False(t, o.Contains(center.WithAltitude(10)))
		}
	})
}

func TestRestrictedZoneContains(t *testing.T) {
	zone := airspace.RestrictedZone{
		ID: "z",
		Boundary: []geo.Point{
			{Lat: 40.77, Lon: -73.96}, {Lat: 40.77, Lon: -73.95},
			{Lat: 40.78, Lon: -73.95}, {Lat: 40.78, Lon: -73.96},
		},
		MinAlt: 50,
		MaxAlt: 150,
	}

	inside := geo.Position{Lat: 40.775, Lon: -73.955}
	assert.True(t, zone.Contains(inside.WithAltitude(50)), "band is inclusive")
	assert.True(t, zone.Contains(inside.WithAltitude(150)), "band is inclusive")
	assert.False(t, zone.Contains(inside.WithAltitude(151)))
	assert.False(t, zone.Contains(inside.WithAltitude(49)))
	assert.False(t, zone.Contains(geo.Position{Lat: 40.785, Lon: -73.955, Alt: 100}))

	t.Run("fewer than three points never contains", func(t *testing.T) {
		degenerate := airspace.RestrictedZone{
			ID:       "d",
			Boundary: []geo.Point{{Lat: 40.77, Lon: -73.96}, {Lat: 40.78, Lon: -73.95}},
			MinAlt:   0,
			MaxAlt:   1000,
		}
		assert.True(t, degenerate.Degenerate())
		for _, p := range degenerate.Boundary {
			assert.False(t, degenerate.Contains(geo.Position{Lat: p.Lat, Lon: p.Lon, Alt: 10}))
		}
		assert.False(t, degenerate.Contains(geo.Position{Lat: 40.775, Lon: -73.955, Alt: 10}))
	})
}

func TestModelPositionSafety(t *testing.T) {
	m := newModel(t)
	require.NoError(t, m.AddObstacle(airspace.Obstacle{
		ID:        "tower",
		Position:  geo.Position{Lat: 40.75, Lon: -73.98},
		Height:    150,
		Footprint: airspace.CircleFootprint{Radius: 50},
	}))
	require.NoError(t, m.AddRestrictedZone(airspace.RestrictedZone{
		ID:       "heliport",
		Boundary: []geo.Point{{Lat: 40.77, Lon: -73.96}, {Lat: 40.77, Lon: -73.95}, {Lat: 40.78, Lon: -73.95}},
		MinAlt:   0,
		MaxAlt:   300,
		Reason:   "helicopters",
	}))

	tests := []struct {
		name       string
		pos        geo.Position
		safe       bool
		reasonPart string
	}{
		{name: "open air", pos: geo.Position{Lat: 40.72, Lon: -73.95, Alt: 80}, safe: true},
		{name: "outside bounds", pos: geo.Position{Lat: 41, Lon: -73.95, Alt: 80}, reasonPart: "bounds"},
		{name: "inside obstacle", pos: geo.Position{Lat: 40.75, Lon: -73.98, Alt: 80}, reasonPart: "obstacle tower"},
		{name: "above obstacle", pos: geo.Position{Lat: 40.75, Lon: -73.98, Alt: 160}, safe: true},
		{name: "inside zone", pos: geo.Position{Lat: 40.7705, Lon: -73.9505, Alt: 80}, reasonPart: "helicopters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			safe, reason := m.CheckPosition(tt.pos)
			assert.Equal(t, tt.safe, safe)
			assert.Equal(t, tt.safe, m.IsPositionSafe(tt.pos))
			if !tt.safe {
				assert.Contains(t, reason, tt.reasonPart)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestSafeAltitude(t *testing.T) {
	m := newModel(t)
	require.NoError(t, m.AddObstacle(airspace.Obstacle{
		ID: "low", Position: geo.Position{Lat: 40.75, Lon: -73.98}, Height: 40,
		Footprint: airspace.CircleFootprint{Radius: 100},
	}))
	require.NoError(t, m.AddObstacle(airspace.Obstacle{
		ID: "high", Position: geo.Position{Lat: 40.75, Lon: -73.98, Alt: 5}, Height: 120,
		Footprint: airspace.CircleFootprint{Radius: 30},
	}))

	assert.Equal(t, 135.0, m.SafeAltitude(geo.Position{Lat: 40.75, Lon: -73.98, Alt: 20}))
	assert.Equal(t, 30.0, m.SafeAltitude(geo.Position{Lat: 40.71, Lon: -73.95, Alt: 20}))
}

func TestAddRouteGeneratesSegments(t *testing.T) {
	m := newModel(t)
	err := m.AddRoute(airspace.Route{
		ID:       "r1",
		MaxSpeed: 20,
		Active:   true,
		Waypoints: []geo.Position{
			{Lat: 40.71, Lon: -73.99, Alt: 80},
			{Lat: 40.72, Lon: -73.99, Alt: 100},
			{Lat: 40.73, Lon: -73.99, Alt: 100},
		},
	})
	require.NoError(t, err)

	segs := m.RouteSegments("r1")
	require.Len(t, segs, 2)
	assert.Equal(t, "r1-seg-0", segs[0].ID)
	assert.Equal(t, 90.0, segs[0].Altitude)
	assert.Equal(t, 20.0, segs[0].SpeedLimit)
	assert.Equal(t, airspace.DefaultSegmentCapacity, segs[0].Capacity)
	assert.Equal(t, airspace.DirectionForward, segs[1].Direction)

	r, ok := m.Route("r1")
	require.True(t, ok)
	assert.Equal(t, []string{"r1-seg-0", "r1-seg-1"}, r.SegmentIDs)

	t.Run("rejects invalid routes", func(t *testing.T) {
		assert.ErrorIs(t, m.AddRoute(airspace.Route{ID: "short", Waypoints: []geo.Position{{}}}), airspace.ErrInvalidRoute)
		assert.ErrorIs(t, m.AddRoute(airspace.Route{Waypoints: make([]geo.Position, 2)}), airspace.ErrMissingID)
		assert.ErrorIs(t, m.AddRoute(airspace.Route{ID: "r1", Waypoints: make([]geo.Position, 2)}), airspace.ErrDuplicateID)
	})
}

func TestFindNearestSegment(t *testing.T) {
	m := newModel(t)
	require.NoError(t, m.AddRoute(airspace.Route{ID: "a", Active: true, Waypoints: []geo.Position{
		{Lat: 40.71, Lon: -73.99}, {Lat: 40.72, Lon: -73.99},
	}}))
	require.NoError(t, m.AddRoute(airspace.Route{ID: "b", Active: true, Waypoints: []geo.Position{
		{Lat: 40.71, Lon: -73.99}, {Lat: 40.70, Lon: -73.99},
	}}))

	t.Run("ties keep encounter order", func(t *testing.T) {
		seg, ok := m.FindNearestSegment(geo.Position{Lat: 40.7101, Lon: -73.99}, 100)
		require.True(t, ok)
		assert.Equal(t, "a-seg-0", seg.ID)
	})

	t.Run("nearest endpoint wins", func(t *testing.T) {
		seg, ok := m.FindNearestSegment(geo.Position{Lat: 40.7199, Lon: -73.99}, 100)
		require.True(t, ok)
		assert.Equal(t, "a-seg-0", seg.ID)

		seg, ok = m.FindNearestSegment(geo.Position{Lat: 40.7001, Lon: -73.99}, 100)
		require.True(t, ok)
		assert.Equal(t, "b-seg-0", seg.ID)
	})

	t.Run("outside threshold", func(t *testing.T) {
		_, ok := m.FindNearestSegment(geo.Position{Lat: 40.715, Lon: -73.99}, 100)
		assert.False(t, ok, "midpoint is far from both endpoints")
	})

	t.Run("non-finite position matches nothing", func(t *testing.T) {
		_, ok := m.FindNearestSegment(geo.Position{Lat: math.NaN(), Lon: -73.99}, 100)
		assert.False(t, ok)
		_, ok = m.FindNearestRoute(geo.Position{Lat: 40.71, Lon: math.Inf(1)}, 100)
		assert.False(t, ok)
	})

	t.Run("nearest route", func(t *testing.T) {
		r, ok := m.FindNearestRoute(geo.Position{Lat: 40.7001, Lon: -73.99}, 100)
		require.True(t, ok)
		assert.Equal(t, "b", r.ID)

		require.NoError(t, m.SetRouteActive("b", false))
		_, ok = m.FindNearestRoute(geo.Position{Lat: 40.7001, Lon: -73.99}, 100)
		assert.False(t, ok)
		assert.ErrorIs(t, m.SetRouteActive("missing", true), airspace.ErrNotFound)
	})
}

func TestLoadDefinition(t *testing.T) {
	m, err := airspace.LoadFile("testdata/downtown.yaml")
	require.NoError(t, err)

	assert.Equal(t, "downtown", m.ID())
	assert.Equal(t, testBounds, m.Bounds())

	obstacles, zones, routes, segments := m.Counts()
	assert.Equal(t, 2, obstacles)
	assert.Equal(t, 1, zones)
	assert.Equal(t, 2, routes)
	assert.Equal(t, 4, segments)

	var fps []airspace.Footprint
	for o := range m.Obstacles() {
		fps = append(fps, o.Footprint)
	}
	assert.Equal(t, airspace.CircleFootprint{Radius: 50}, fps[0])
	assert.Equal(t, airspace.RectFootprint{Width: 60, Length: 80}, fps[1])

	reverse := m.SegmentsInDirection(airspace.DirectionReverse)
	require.Len(t, reverse, 1)
	assert.Equal(t, "river-down", reverse[0].ID)
	assert.Equal(t, 4, reverse[0].Capacity)

	atNinety := m.RoutesAtAltitude(90, 0)
	require.Len(t, atNinety, 1)
	assert.Equal(t, "north-south", atNinety[0].ID)
	assert.Empty(t, m.RoutesAtAltitude(45, 5), "inactive routes are skipped")
	assert.Len(t, m.RoutesAtAltitude(105, 5), 1)
	assert.Empty(t, m.RoutesAtAltitude(106, 5))

	assert.Equal(t, []string{"heliport"}, m.ZonesContaining(geo.Position{Lat: 40.775, Lon: -73.955, Alt: 100}))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := airspace.Load(strings.NewReader("id: x\nbogus: 1\n"))
	assert.Error(t, err)

	_, err = airspace.Load(strings.NewReader("id: x\nbounds: {min_lat: 1, max_lat: 1}\n"))
	assert.ErrorIs(t, err, airspace.ErrInvalidBounds)
}

func TestObstacleDefinitionPrefersCircle(t *testing.T) {
	d := airspace.ObstacleDefinition{Radius: 10, Width: 100, Length: 100}
	assert.Equal(t, airspace.CircleFootprint{Radius: 10}, d.Footprint())
}
