package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/rules"
	"github.com/skylane/utm/internal/vehicle"
)

var here = geo.Position{Lat: 40.75, Lon: -73.98, Alt: 90}

func flying(t *testing.T, speed float64, status vehicle.Status) *vehicle.Vehicle {
	t.Helper()
	v, err := vehicle.New(vehicle.Spec{ID: "v1"})
	require.NoError(t, err)
	v.SetPosition(here)
	v.SetVelocity(speed)
	v.SetStatus(status)
	return v
}

func TestSpeedLimitRule(t *testing.T) {
	rule := rules.NewSpeedLimitRule("s", "speed", 1, 20, 5, 5)

	tests := []struct {
		name      string
		speed     float64
		status    vehicle.Status
		violation bool
		warning   bool
	}{
		{name: "well below", speed: 10, status: vehicle.StatusInFlight},
		{name: "warning band", speed: 16, status: vehicle.StatusInFlight, warning: true},
		{name: "band lower edge", speed: 15, status: vehicle.StatusInFlight, warning: true},
		{name: "exactly at limit", speed: 20, status: vehicle.StatusInFlight, warning: true},
		{name: "over limit", speed: 25, status: vehicle.StatusInFlight, violation: true},
		{name: "below minimum in flight", speed: 2, status: vehicle.StatusInFlight, violation: true},
		{name: "below minimum on ground", speed: 2, status: vehicle.StatusPreparing},
		{name: "below minimum taking off", speed: 2, status: vehicle.StatusTakingOff},
		{name: "below minimum landing", speed: 2, status: vehicle.StatusLanding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := flying(t, tt.speed, tt.status)
			assert.Equal(t, tt.violation, rule.Violated(v, here))
			assert.Equal(t, tt.warning, rule.InWarningZone(v, here))
			assert.False(t, rule.Violated(v, here) && rule.InWarningZone(v, here))
		})
	}
}

func TestFlightPhases(t *testing.T) {
	for _, s := range vehicle.Statuses() {
		phases := 0
		for _, in := range []bool{rules.Entering(s), rules.InFlight(s), rules.Exiting(s)} {
			if in {
				phases++
			}
		}
		assert.LessOrEqual(t, phases, 1, "status %s", s)
	}
	assert.True(t, rules.InFlight(vehicle.StatusInFlight))
	assert.False(t, rules.InFlight(vehicle.StatusTakingOff))
	assert.False(t, rules.InFlight(vehicle.StatusLanding))
}

func TestEntryExitRule(t *testing.T) {
	rule := rules.NewEntryExitRule("ee", "entry exit", 1, 10, 15, 8, 6)

	tests := []struct {
		name      string
		speed     float64
		status    vehicle.Status
		violation bool
	}{
		{name: "preparing under cap", speed: 8, status: vehicle.StatusPreparing},
		{name: "taking off over cap", speed: 9, status: vehicle.StatusTakingOff, violation: true},
		{name: "landing over cap", speed: 7, status: vehicle.StatusLanding, violation: true},
		{name: "landing under cap", speed: 6, status: vehicle.StatusLanding},
		{name: "cruise is out of scope", speed: 40, status: vehicle.StatusInFlight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := flying(t, tt.speed, tt.status)
			assert.Equal(t, tt.violation, rule.Violated(v, here))
			assert.False(t, rule.InWarningZone(v, here))
		})
	}

	assert.Equal(t, 100.0, rule.EntryAltitude(90))
	assert.Equal(t, 75.0, rule.ExitAltitude(90))
	assert.Equal(t, rules.TypeEntryExit, rule.Info().Type)
}

func TestEnginePriorityOrder(t *testing.T) {
	low := rules.NewSpeedLimitRule("low", "low", 1, 10, 0, 0)
	highA := rules.NewSpeedLimitRule("high-a", "high a", 5, 10, 0, 0)
	highB := rules.NewSpeedLimitRule("high-b", "high b", 5, 10, 0, 0)
	mid := rules.NewEntryExitRule("mid", "mid", 3, 0, 0, 0, 0)

	e, err := rules.NewEngine(low, highA, mid, highB)
	require.NoError(t, err)

	ids := func() []string {
		var out []string
		for _, r := range e.Rules() {
			out = append(out, r.Info().ID)
		}
		return out
	}
	assert.Equal(t, []string{"high-a", "high-b", "mid", "low"}, ids())

	assert.ErrorIs(t, e.Add(rules.NewSpeedLimitRule("low", "dup", 9, 1, 0, 0)), rules.ErrDuplicateRule)
	assert.ErrorIs(t, e.Add(nil), rules.ErrNilRule)

	assert.True(t, e.Remove("mid"))
	assert.False(t, e.Remove("mid"))
	assert.Equal(t, []string{"high-a", "high-b", "low"}, ids())
}

func TestEngineChecks(t *testing.T) {
	limit := rules.NewSpeedLimitRule("limit", "limit", 10, 20, 0, 5)
	strict := rules.NewSpeedLimitRule("strict", "strict", 20, 15, 0, 2)
	e, err := rules.NewEngine(limit, strict)
	require.NoError(t, err)

	v := flying(t, 17, vehicle.StatusInFlight)

	violations, err := e.CheckViolations(v, here)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "strict", violations[0].Info().ID)

	warnings, err := e.CheckWarnings(v, here)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "limit", warnings[0].Info().ID)

	res, err := e.Evaluate(v, here)
	require.NoError(t, err)
	assert.False(t, res.Compliant())
	assert.Len(t, res.Violations, 1)
	assert.Len(t, res.Warnings, 1)

	t.Run("inactive rules are skipped", func(t *testing.T) {
		strict.Base.Active = false
		defer func() { strict.Base.Active = true }()
		violations, err := e.CheckViolations(v, here)
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("disabled engine reports nothing", func(t *testing.T) {
		e.SetEnabled(false)
		defer e.SetEnabled(true)
		assert.False(t, e.Enabled())
		violations, _ := e.CheckViolations(v, here)
		warnings, _ := e.CheckWarnings(v, here)
		assert.Empty(t, violations)
		assert.Empty(t, warnings)
	})

	t.Run("nil vehicle is an argument error", func(t *testing.T) {
		_, err := e.CheckViolations(nil, here)
		assert.ErrorIs(t, err, vehicle.ErrNilVehicle)
		_, err = e.CheckWarnings(nil, here)
		assert.ErrorIs(t, err, vehicle.ErrNilVehicle)
		_, err = e.Evaluate(nil, here)
		assert.ErrorIs(t, err, vehicle.ErrNilVehicle)
	})
}

func TestZoneScopedRule(t *testing.T) {
	zone := &airspace.RestrictedZone{
		ID: "school",
		Boundary: []geo.Point{
			{Lat: 40.74, Lon: -73.99}, {Lat: 40.74, Lon: -73.97},
			{Lat: 40.76, Lon: -73.97}, {Lat: 40.76, Lon: -73.99},
		},
		MinAlt: 0,
		MaxAlt: 200,
	}
	rule := rules.NewSpeedLimitRule("school-zone", "school zone", 50, 10, 0, 0)
	rule.Base.Zone = zone

	e, err := rules.NewEngine(rule)
	require.NoError(t, err)

	v := flying(t, 12, vehicle.StatusInFlight)
	inside, _ := e.CheckViolations(v, here)
	assert.Len(t, inside, 1)

	outside, _ := e.CheckViolations(v, geo.Position{Lat: 40.71, Lon: -73.98, Alt: 90})
	assert.Empty(t, outside)
}

func TestDefaults(t *testing.T) {
	e, err := rules.NewEngine(rules.Defaults()...)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())
	assert.Equal(t, rules.TypeSpeedLimit, e.Rules()[0].Info().Type)
}
