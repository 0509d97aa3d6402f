package control

import (
	"fmt"
	"time"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/collision"
	"github.com/skylane/utm/internal/flow"
	"github.com/skylane/utm/internal/spatial"
	"github.com/skylane/utm/internal/station"
	"github.com/skylane/utm/internal/vehicle"
)

// Snapshot is the complete restorable state of a center.
type Snapshot struct {
	CenterID       string
	Operational    bool
	CapturedAt     time.Time
	Airspace       *airspace.Model
	Vehicles       []*vehicle.Vehicle
	GroundStations []station.GroundStation
	Authorizations []vehicle.Authorization
}

// Snapshot captures the center's state. Vehicles are independent copies.
func (c *Center) Snapshot() Snapshot {
	snap := Snapshot{
		CenterID:       c.id,
		Operational:    c.IsOperational(),
		CapturedAt:     c.now(),
		Airspace:       c.Airspace(),
		Authorizations: c.Authorizations(),
	}
	for _, v := range c.current() {
		snap.Vehicles = append(snap.Vehicles, v.Clone())
	}
	for _, s := range c.GroundStations() {
		snap.GroundStations = append(snap.GroundStations, s.Station)
	}
	return snap
}

// Restore replaces the center's state with snap. Vehicles in the snapshot
// are registered directly; each must have a position. The center id is
// kept from configuration.
func (c *Center) Restore(snap Snapshot) error {
	const op = "restore"
	if snap.Airspace == nil && len(snap.Vehicles) > 0 {
		return validationError(op, "", ErrNoAirspace)
	}

	tracker, err := station.NewTracker(snap.GroundStations...)
	if err != nil {
		return validationError(op, "", err)
	}

	var state *airspaceState
	var tree *spatial.Tree[*entry]
	if snap.Airspace != nil {
		tree, err = spatial.New[*entry](snap.Airspace.Bounds())
		if err != nil {
			return validationError(op, "", err)
		}
		riskCfg := c.collisionCfg
		riskCfg.LayerAware = true
		state = &airspaceState{
			model: snap.Airspace,
			risk:  collision.NewEngine(riskCfg),
			flow:  flow.NewAssigner(snap.Airspace),
		}
	}

	registry := make(map[string]*entry, len(snap.Vehicles))
	for _, v := range snap.Vehicles {
		if v == nil {
			return validationError(op, "", vehicle.ErrNilVehicle)
		}
		if _, dup := registry[v.ID()]; dup {
			return validationError(op, v.ID(), ErrAlreadyRegistered)
		}
		p, ok := v.Position()
		if !ok {
			return validationError(op, v.ID(), ErrMissingPosition)
		}
		next := v.Clone()
		if _, _, err := state.flow.UpdateSegment(next, c.segThreshold); err != nil {
			return validationError(op, v.ID(), err)
		}
		e := &entry{id: v.ID()}
		e.cur.Store(next)
		if err := tree.Insert(v.ID(), clampTo(tree.Bounds(), p), e); err != nil {
			return stateError(op, v.ID(), err)
		}
		registry[v.ID()] = e
		tracker.Connect(v.ID(), p)
	}
	if len(registry) > c.maxActive {
		return stateError(op, "", fmt.Errorf("%w: snapshot holds %d vehicles", ErrCapacityReached, len(registry)))
	}

	auths := make(map[string]*vehicle.Authorization, len(snap.Authorizations))
	for _, a := range snap.Authorizations {
		a := a
		auths[a.VehicleID] = &a
	}

	c.regMu.Lock()
	for _, old := range c.registry {
		old.mu.Lock()
		old.removed = true
		old.mu.Unlock()
	}
	c.indexMu.Lock()
	previous := len(c.registry)
	c.registry = registry
	c.index = tree
	c.space.Store(state)
	c.stations.Store(tracker)
	c.indexMu.Unlock()
	c.regMu.Unlock()

	c.authMu.Lock()
	c.auths = auths
	c.authMu.Unlock()

	c.operational.Store(snap.Operational)
	c.metrics.recordActive(int64(len(registry) - previous))

	c.logger.Info().
		Str("center_id", c.id).
		Str("snapshot_center_id", snap.CenterID).
		Time("captured_at", snap.CapturedAt).
		Int("vehicles", len(registry)).
		Int("authorizations", len(auths)).
		Msg("State restored")
	return nil
}
