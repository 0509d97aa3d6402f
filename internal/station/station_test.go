package station_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/station"
)

func newTracker(t *testing.T) *station.Tracker {
	t.Helper()
	tr, err := station.NewTracker(
		station.GroundStation{ID: "south", Position: geo.Position{Lat: 40.71, Lon: -73.99}, RangeMeters: 3000, MaxConnections: 1, Operational: true},
		station.GroundStation{ID: "north", Position: geo.Position{Lat: 40.77, Lon: -73.99}, RangeMeters: 3000, Operational: true},
	)
	require.NoError(t, err)
	return tr
}

func TestAddStationValidation(t *testing.T) {
	tr := newTracker(t)
	assert.ErrorIs(t, tr.AddStation(station.GroundStation{}), station.ErrMissingID)
	assert.ErrorIs(t, tr.AddStation(station.GroundStation{ID: "x"}), station.ErrInvalidRange)
	assert.ErrorIs(t, tr.AddStation(station.GroundStation{ID: "north", RangeMeters: 1}), station.ErrDuplicateID)
	assert.ErrorIs(t, tr.SetOperational("missing", true), station.ErrNotFound)
}

func TestConnectNearestInRange(t *testing.T) {
	tr := newTracker(t)

	sid, ok := tr.Connect("v1", geo.Position{Lat: 40.715, Lon: -73.99})
	require.True(t, ok)
	assert.Equal(t, "south", sid)

	t.Run("full station is skipped", func(t *testing.T) {
		_, ok := tr.Connect("v2", geo.Position{Lat: 40.715, Lon: -73.99})
		assert.False(t, ok, "north is out of range and south is full")
	})

	t.Run("reconnecting keeps own slot", func(t *testing.T) {
		sid, ok := tr.Connect("v1", geo.Position{Lat: 40.712, Lon: -73.99})
		require.True(t, ok)
		assert.Equal(t, "south", sid)
	})

	t.Run("moving hands over", func(t *testing.T) {
		sid, ok := tr.Connect("v1", geo.Position{Lat: 40.76, Lon: -73.99})
		require.True(t, ok)
		assert.Equal(t, "north", sid)
		counts := map[string]int{}
		for _, s := range tr.Stations() {
			counts[s.Station.ID] = s.Connections
		}
		assert.Equal(t, map[string]int{"south": 0, "north": 1}, counts)
	})

	tr.Disconnect("v1")
	_, ok = tr.StationFor("v1")
	assert.False(t, ok)
	assert.Empty(t, tr.Connected("north"))
}

func TestStationOutageDropsLinks(t *testing.T) {
	tr := newTracker(t)
	_, ok := tr.Connect("v1", geo.Position{Lat: 40.77, Lon: -73.99})
	require.True(t, ok)
	assert.Equal(t, []string{"v1"}, tr.Connected("north"))

	require.NoError(t, tr.SetOperational("north", false))
	assert.Empty(t, tr.Connected("north"))

	_, ok = tr.Connect("v1", geo.Position{Lat: 40.77, Lon: -73.99})
	assert.False(t, ok, "south is 6.6 km away")
}
