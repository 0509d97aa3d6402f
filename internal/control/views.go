package control

import (
	"slices"
	"strings"

	"github.com/skylane/utm/internal/station"
	"github.com/skylane/utm/internal/vehicle"
)

// AddGroundStation registers a ground station.
func (c *Center) AddGroundStation(g station.GroundStation) error {
	if err := c.stations.Load().AddStation(g); err != nil {
		return validationError("add_ground_station", "", err)
	}
	return nil
}

// SetGroundStationOperational toggles a station. Vehicles linked to a
// station taken down reconnect on their next update.
func (c *Center) SetGroundStationOperational(id string, operational bool) error {
	if err := c.stations.Load().SetOperational(id, operational); err != nil {
		return stateError("set_ground_station", "", err)
	}
	return nil
}

// GroundStations returns every station with its connection count.
func (c *Center) GroundStations() []station.Status {
	return c.stations.Load().Stations()
}

// GroundStationFor returns the station a vehicle is linked to.
func (c *Center) GroundStationFor(vehicleID string) (string, bool) {
	return c.stations.Load().StationFor(vehicleID)
}

// Authorization returns the current authorization record for a vehicle.
func (c *Center) Authorization(vehicleID string) (vehicle.Authorization, bool) {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	a, ok := c.auths[vehicleID]
	if !ok {
		return vehicle.Authorization{}, false
	}
	return *a, true
}

// Authorizations returns the authorization table ordered by request time.
func (c *Center) Authorizations() []vehicle.Authorization {
	c.authMu.RLock()
	out := make([]vehicle.Authorization, 0, len(c.auths))
	for _, a := range c.auths {
		out = append(out, *a)
	}
	c.authMu.RUnlock()

	slices.SortFunc(out, func(a, b vehicle.Authorization) int {
		if d := a.RequestedAt.Compare(b.RequestedAt); d != 0 {
			return d
		}
		return strings.Compare(a.VehicleID, b.VehicleID)
	})
	return out
}

// CancelAuthorization withdraws a vehicle's pending or approved
// authorization. A registered vehicle stays registered.
func (c *Center) CancelAuthorization(vehicleID string) bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	a, ok := c.auths[vehicleID]
	if !ok {
		return false
	}
	updated := *a
	if !updated.Cancel() {
		return false
	}
	c.auths[vehicleID] = &updated
	c.logger.Info().Str("vehicle_id", vehicleID).Str("authorization_id", a.ID).Msg("Authorization cancelled")
	return true
}

// ExpireAuthorizations moves every approved authorization past its
// deadline to expired and returns how many changed.
func (c *Center) ExpireAuthorizations() int {
	now := c.now()
	c.authMu.Lock()
	defer c.authMu.Unlock()

	expired := 0
	for id, a := range c.auths {
		if !a.Lapsed(now) {
			continue
		}
		updated := *a
		updated.Expire()
		c.auths[id] = &updated
		expired++
	}
	if expired > 0 {
		c.logger.Info().Int("count", expired).Msg("Authorizations expired")
	}
	return expired
}

// Stats aggregates registry and authorization counts for dashboards.
type Stats struct {
	CenterID          string
	Operational       bool
	ActiveVehicles    int
	MaxActiveVehicles int
	ByStatus          map[vehicle.Status]int
	Authorizations    map[vehicle.AuthorizationStatus]int
	GroundStations    int
	ConnectedVehicles int
	SegmentOccupancy  map[string]int
}

// Stats returns current aggregate counts.
func (c *Center) Stats() Stats {
	st := Stats{
		CenterID:          c.id,
		Operational:       c.IsOperational(),
		MaxActiveVehicles: c.maxActive,
		ByStatus:          make(map[vehicle.Status]int),
		Authorizations:    make(map[vehicle.AuthorizationStatus]int),
		SegmentOccupancy:  map[string]int{},
	}

	for _, v := range c.current() {
		st.ActiveVehicles++
		st.ByStatus[v.Status()]++
	}

	c.authMu.RLock()
	for _, a := range c.auths {
		st.Authorizations[a.Status]++
	}
	c.authMu.RUnlock()

	for _, s := range c.GroundStations() {
		st.GroundStations++
		st.ConnectedVehicles += s.Connections
	}

	if s := c.space.Load(); s != nil {
		st.SegmentOccupancy = s.flow.OccupancyBySegment()
	}
	return st
}
