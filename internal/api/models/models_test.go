package models_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/api/models"
	"github.com/skylane/utm/internal/collision"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/vehicle"
	"github.com/skylane/utm/pkg/polyline"
)

func TestSeconds_InfinityIsNull(t *testing.T) {
	risks := models.NewRisks([]collision.Risk{
		{VehicleA: "a", VehicleB: "b", Level: collision.LevelHigh, TimeToCollision: math.Inf(1)},
		{VehicleA: "a", VehicleB: "c", Level: collision.LevelCritical, TimeToCollision: 4.5},
	})

	b, err := json.Marshal(risks)
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Len(t, raw, 2)
	assert.Nil(t, raw[0]["timeToCollision"])
	assert.Equal(t, "HIGH", raw[0]["level"])
	assert.InDelta(t, 4.5, raw[1]["timeToCollision"], 1e-9)

	var decoded []models.Risk
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.True(t, math.IsInf(float64(decoded[0].TimeToCollision), 1))
	assert.Equal(t, collision.LevelCritical, decoded[1].Level)
}

func TestPosition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		pos    models.Position
		fields []string
	}{
		{"valid", models.Position{Lat: 52.1, Lon: 4.3, Alt: 80}, nil},
		{"latitude out of range", models.Position{Lat: 91, Lon: 4.3}, []string{"p.lat"}},
		{"longitude out of range", models.Position{Lat: 0, Lon: -181}, []string{"p.lon"}},
		{"altitude not finite", models.Position{Alt: math.Inf(1)}, []string{"p.alt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fields []string
			for _, e := range tt.pos.Validate("p") {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestPosition_GeoStampsMissingTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := models.Position{Lat: 52, Lon: 4, Alt: 50}
	assert.Equal(t, now, p.Geo(now).Timestamp)

	ts := models.Timestamp(now.Add(-time.Minute))
	p.Timestamp = &ts
	assert.Equal(t, now.Add(-time.Minute), p.Geo(now).Timestamp)
}

func TestTelemetryUpdate_Validate(t *testing.T) {
	bad := vehicle.Status("hovering")
	nan := math.NaN()
	u := models.TelemetryUpdate{
		Position: models.Position{Lat: 52, Lon: 4},
		Fuel:     &nan,
		Status:   &bad,
	}
	errs := u.Validate()
	require.Len(t, errs, 2)

	ok := vehicle.StatusInFlight
	speed := 12.0
	u = models.TelemetryUpdate{Position: models.Position{Lat: 52, Lon: 4, Alt: 60}, Velocity: &speed, Status: &ok}
	assert.Empty(t, u.Validate())

	tel := u.Telemetry(time.Now())
	assert.Equal(t, 60.0, tel.Position.Alt)
	assert.Equal(t, &speed, tel.Velocity)
	assert.Equal(t, &ok, tel.Status)
}

func TestAuthorizationRequest_Validate(t *testing.T) {
	req := models.AuthorizationRequest{
		Vehicle:     models.VehicleSpec{MaxSpeed: -1},
		Departure:   models.Position{Lat: 52, Lon: 4},
		Destination: models.Position{Lat: 100, Lon: 4},
	}
	var fields []string
	for _, e := range req.Validate() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"vehicle.id", "vehicle.maxSpeed", "destination.lat"}, fields)
}

func TestNewVehicle(t *testing.T) {
	v, err := models.VehicleSpec{ID: "uav-1", Category: vehicle.CategoryInspection, MaxSpeed: 20}.Vehicle()
	require.NoError(t, err)

	out := models.NewVehicle(v, "gs-1")
	assert.Equal(t, "uav-1", out.ID)
	assert.Equal(t, vehicle.CategoryInspection, out.Category)
	assert.Nil(t, out.Position)
	assert.Equal(t, "gs-1", out.GroundStation)

	v.SetPosition(geo.NewPosition(52, 4, 70, time.Now()))
	out = models.NewVehicle(v, "")
	require.NotNil(t, out.Position)
	assert.Equal(t, 70.0, out.Position.Alt)
}

func TestNewAuthorization_OmitsZeroTimes(t *testing.T) {
	a := vehicle.NewAuthorization("uav-1", geo.Position{Lat: 52, Lon: 4}, geo.Position{Lat: 52.1, Lon: 4.1}, time.Now())
	a.Reject("no airspace loaded")

	out := models.NewAuthorization(*a)
	assert.Equal(t, vehicle.AuthRejected, out.Status)
	assert.Nil(t, out.AuthorizedAt)
	assert.Nil(t, out.ValidUntil)
	assert.Equal(t, "no airspace loaded", out.RejectionReason)
}

func TestNewRoute_EncodesGeometry(t *testing.T) {
	r := airspace.Route{
		ID:       "r1",
		Active:   true,
		MaxSpeed: 15,
		Waypoints: []geo.Position{
			{Lat: 52.0, Lon: 4.0, Alt: 60},
			{Lat: 52.01, Lon: 4.0, Alt: 80},
		},
	}
	segs := []airspace.RouteSegment{{ID: "r1-0", RouteID: "r1", Capacity: 10}}

	out := models.NewRoute(r, segs, map[string]int{"r1-0": 3})
	assert.Equal(t, 2, out.Waypoints)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, 3, out.Segments[0].Occupancy)

	coords, err := polyline.Decode3D(out.Polyline)
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.InDelta(t, 80, coords[1].Alt, 0.01)
	assert.Greater(t, out.LengthM, 1100.0)
}

func TestNewObstacle_Shapes(t *testing.T) {
	circle := models.NewObstacle(airspace.Obstacle{ID: "o1", Height: 40, Footprint: airspace.CircleFootprint{Radius: 25}})
	assert.Equal(t, "circle", circle.Shape)
	assert.Equal(t, 25.0, circle.Radius)
	assert.Equal(t, 40.0, circle.Top)

	rect := models.NewObstacle(airspace.Obstacle{ID: "o2", Footprint: airspace.RectFootprint{Width: 10, Length: 30}})
	assert.Equal(t, "rectangle", rect.Shape)
	assert.Equal(t, 30.0, rect.Length)
}
