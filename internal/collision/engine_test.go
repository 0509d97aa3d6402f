package collision_test

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/collision"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/vehicle"
)

var origin = geo.Position{Lat: 40.75, Lon: -73.98}

func place(t *testing.T, id string, p geo.Position, speed, heading float64) *vehicle.Vehicle {
	t.Helper()
	v, err := vehicle.New(vehicle.Spec{ID: id})
	require.NoError(t, err)
	v.SetPosition(p)
	v.SetVelocity(speed)
	v.SetHeading(heading)
	v.SetStatus(vehicle.StatusInFlight)
	return v
}

func offset(p geo.Position, heading, meters, alt float64) geo.Position {
	out := p.Project(heading, meters, time.Second)
	out.Alt = alt
	return out
}

func TestStackedVehiclesAreHighRisk(t *testing.T) {
	e := collision.NewEngine(collision.Config{})
	a := place(t, "a", origin.WithAltitude(100), 0, 0)
	b := place(t, "b", origin.WithAltitude(105), 0, 0)

	risk, err := e.Between(a, b)
	require.NoError(t, err)
	require.NotNil(t, risk)

	assert.Contains(t, []collision.Level{collision.LevelHigh, collision.LevelCritical}, risk.Level)
	assert.Less(t, risk.HorizontalDistance, 50.0)
	assert.InDelta(t, 5.0, risk.VerticalDistance, 1e-9)
	assert.True(t, math.IsInf(risk.TimeToCollision, 1), "stationary vehicles never close")
	assert.False(t, risk.Closing())
	assert.Equal(t, collision.ActionFor(risk.Level), risk.Action)
}

func TestSeparatedDivergingVehicles(t *testing.T) {
	e := collision.NewEngine(collision.Config{})
	a := place(t, "a", origin.WithAltitude(100), 20, 270)
	b := place(t, "b", offset(origin, 90, 80, 120), 20, 90)

	risk, err := e.Between(a, b)
	require.NoError(t, err)
	if risk != nil {
		assert.Contains(t, []collision.Level{collision.LevelLow, collision.LevelMedium}, risk.Level)
	}
}

func TestSeparatedButClosing(t *testing.T) {
	e := collision.NewEngine(collision.Config{})
	a := place(t, "a", origin.WithAltitude(100), 4, 90)
	b := place(t, "b", offset(origin, 90, 300, 120), 4, 270)

	risk, err := e.Between(a, b)
	require.NoError(t, err)
	require.NotNil(t, risk, "head-on approach must be scored even while separated")
	assert.InDelta(t, 300, risk.HorizontalDistance, 1)
	assert.InDelta(t, (risk.Distance-50)/8, risk.TimeToCollision, 1e-6)
	assert.True(t, risk.Closing())
	assert.NotEqual(t, collision.LevelCritical, risk.Level)
}

func TestMissingPositionIsNoRisk(t *testing.T) {
	e := collision.NewEngine(collision.Config{})
	a := place(t, "a", origin.WithAltitude(100), 0, 0)
	b, err := vehicle.New(vehicle.Spec{ID: "b"})
	require.NoError(t, err)

	risk, err := e.Between(a, b)
	assert.NoError(t, err)
	assert.Nil(t, risk)

	_, err = e.Between(nil, a)
	assert.ErrorIs(t, err, vehicle.ErrNilVehicle)
	_, err = e.RisksFor(nil, nil)
	assert.ErrorIs(t, err, vehicle.ErrNilVehicle)
}

func TestLayerAwareScoring(t *testing.T) {
	plain := collision.NewEngine(collision.Config{})
	layered := collision.NewEngine(collision.Config{LayerAware: true})

	t.Run("wide layer gap separates", func(t *testing.T) {
		a := place(t, "a", origin.WithAltitude(50), 0, 0)
		b := place(t, "b", origin.WithAltitude(170), 0, 0)
		risk, err := layered.Between(a, b)
		require.NoError(t, err)
		assert.Nil(t, risk)
	})

	t.Run("adjacent layers at distance separate", func(t *testing.T) {
		a := place(t, "a", origin.WithAltitude(40), 10, 90)
		b := place(t, "b", offset(origin, 90, 150, 110), 10, 270)
		risk, err := layered.Between(a, b)
		require.NoError(t, err)
		assert.Nil(t, risk)
	})

	t.Run("close layers scale the score", func(t *testing.T) {
		a := place(t, "a", origin.WithAltitude(55), 0, 0)
		b := place(t, "b", origin.WithAltitude(65), 0, 0)

		full, err := plain.Between(a, b)
		require.NoError(t, err)
		require.NotNil(t, full)
		scaled, err := layered.Between(a, b)
		require.NoError(t, err)
		require.NotNil(t, scaled)

		assert.InDelta(t, full.Score*0.5, scaled.Score, 1e-9)
		assert.Equal(t, collision.LevelHigh, scaled.Level, "horizontal minimum is still violated")
	})

	t.Run("outside all layers scores normally", func(t *testing.T) {
		a := place(t, "a", origin.WithAltitude(185), 0, 0)
		b := place(t, "b", origin.WithAltitude(170), 0, 0)
		full, _ := plain.Between(a, b)
		scaled, _ := layered.Between(a, b)
		require.NotNil(t, full)
		require.NotNil(t, scaled)
		assert.Equal(t, full.Score, scaled.Score)
	})
}

func TestScoreBoundsProperty(t *testing.T) {
	e := collision.NewEngine(collision.Config{LayerAware: true})
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		a := place(t, "a", offset(origin, rng.Float64()*360, rng.Float64()*400, rng.Float64()*200), rng.Float64()*50, rng.Float64()*360)
		b := place(t, "b", offset(origin, rng.Float64()*360, rng.Float64()*400, rng.Float64()*200), rng.Float64()*50, rng.Float64()*360)
		risk, err := e.Between(a, b)
		require.NoError(t, err)
		if risk == nil {
			continue
		}
		assert.GreaterOrEqual(t, risk.Score, 0.0)
		assert.LessOrEqual(t, risk.Score, 1.0)
		assert.GreaterOrEqual(t, risk.TimeToCollision, 0.0)
	}
}

func TestRisksFor(t *testing.T) {
	e := collision.NewEngine(collision.Config{})
	self := place(t, "self", origin.WithAltitude(100), 0, 0)
	stacked := place(t, "stacked", origin.WithAltitude(103), 0, 0)
	near := place(t, "near", offset(origin, 0, 30, 100), 0, 0)
	far := place(t, "far", offset(origin, 0, 800, 100), 0, 0)
	placeless, err := vehicle.New(vehicle.Spec{ID: "placeless"})
	require.NoError(t, err)

	risks, err := e.RisksFor(self, []*vehicle.Vehicle{far, near, self, nil, placeless, stacked})
	require.NoError(t, err)
	require.Len(t, risks, 2)

	assert.Equal(t, "stacked", risks[0].Other("self"))
	assert.Equal(t, "near", risks[1].Other("self"))
	assert.GreaterOrEqual(t, risks[0].Score, risks[1].Score)
}

func TestRiskPairIdentity(t *testing.T) {
	ab := collision.Risk{VehicleA: "a", VehicleB: "b", Score: 0.9}
	ba := collision.Risk{VehicleA: "b", VehicleB: "a", Score: 0.1}
	ac := collision.Risk{VehicleA: "a", VehicleB: "c"}

	assert.True(t, ab.SamePair(ba))
	assert.False(t, ab.SamePair(ac))

	deduped := collision.Dedupe([]collision.Risk{ab, ba, ac})
	require.Len(t, deduped, 2)
	assert.Equal(t, 0.9, deduped[0].Score)
}

func TestLevelText(t *testing.T) {
	for _, l := range []collision.Level{collision.LevelLow, collision.LevelMedium, collision.LevelHigh, collision.LevelCritical} {
		b, err := l.MarshalText()
		require.NoError(t, err)
		var back collision.Level
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, l, back)
	}
	_, err := collision.ParseLevel("severe")
	assert.Error(t, err)
	lvl, err := collision.ParseLevel("critical")
	require.NoError(t, err)
	assert.Equal(t, collision.LevelCritical, lvl)
	assert.Equal(t, fmt.Sprint(collision.LevelHigh), "HIGH")
}
