// Package flow assigns vehicles to route segments and tracks segment
// occupancy and compliance.
package flow

import (
	"math"
	"slices"
	"sync"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/vehicle"
)

const (
	// AltitudeTolerance is the allowed deviation from a segment's altitude, in meters.
	AltitudeTolerance = 5.0
	// SpeedTolerance is the allowed overshoot of a segment's speed limit, as a fraction.
	SpeedTolerance = 0.10
)

// Assigner maps vehicles onto route segments. It is safe for concurrent use.
type Assigner struct {
	airspace *airspace.Model

	mu        sync.RWMutex
	occupancy map[string]map[string]struct{}
}

// NewAssigner creates an assigner over the route network of m.
func NewAssigner(m *airspace.Model) *Assigner {
	return &Assigner{
		airspace:  m,
		occupancy: make(map[string]map[string]struct{}),
	}
}

// UpdateSegment keeps v on its current segment while it stays within
// threshold meters of one of the segment's endpoints; otherwise it moves v
// to the nearest segment within threshold, or clears the assignment. The
// vehicle's segment id is updated in place.
func (a *Assigner) UpdateSegment(v *vehicle.Vehicle, threshold float64) (airspace.RouteSegment, bool, error) {
	if v == nil {
		return airspace.RouteSegment{}, false, vehicle.ErrNilVehicle
	}
	current := v.SegmentID()
	p, ok := v.Position()
	if !ok {
		a.move(v.ID(), current, "")
		v.SetSegmentID("")
		return airspace.RouteSegment{}, false, nil
	}

	if current != "" {
		if seg, ok := a.airspace.Segment(current); ok && seg.EndpointDistance(p) <= threshold {
			a.move(v.ID(), current, current)
			return seg, true, nil
		}
	}

	seg, found := a.airspace.FindNearestSegment(p, threshold)
	if !found {
		a.move(v.ID(), current, "")
		v.SetSegmentID("")
		return airspace.RouteSegment{}, false, nil
	}
	a.move(v.ID(), current, seg.ID)
	v.SetSegmentID(seg.ID)
	return seg, true, nil
}

// CheckCompliance reports whether v flies its segment's profile: within
// AltitudeTolerance of the segment altitude and no more than SpeedTolerance
// over its speed limit. Vehicles without a segment are compliant.
func (a *Assigner) CheckCompliance(v *vehicle.Vehicle) (bool, error) {
	if v == nil {
		return false, vehicle.ErrNilVehicle
	}
	if v.SegmentID() == "" {
		return true, nil
	}
	seg, ok := a.airspace.Segment(v.SegmentID())
	if !ok {
		return true, nil
	}
	if math.Abs(v.Altitude()-seg.Altitude) > AltitudeTolerance {
		return false, nil
	}
	if seg.SpeedLimit > 0 && v.Velocity() > seg.SpeedLimit*(1+SpeedTolerance) {
		return false, nil
	}
	return true, nil
}

// IsAtCapacity reports whether a segment holds as many vehicles as it allows.
func (a *Assigner) IsAtCapacity(segmentID string) bool {
	seg, ok := a.airspace.Segment(segmentID)
	if !ok {
		return false
	}
	return a.Occupancy(segmentID) >= seg.Capacity
}

// Occupancy returns the number of vehicles assigned to a segment.
func (a *Assigner) Occupancy(segmentID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.occupancy[segmentID])
}

// Members returns the sorted ids of vehicles assigned to a segment.
func (a *Assigner) Members(segmentID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.occupancy[segmentID]))
	for id := range a.occupancy[segmentID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// OccupancyBySegment returns the member count of every occupied segment.
func (a *Assigner) OccupancyBySegment() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int, len(a.occupancy))
	for id, members := range a.occupancy {
		out[id] = len(members)
	}
	return out
}

// Release removes a vehicle from a segment's membership.
func (a *Assigner) Release(vehicleID, segmentID string) {
	a.move(vehicleID, segmentID, "")
}

func (a *Assigner) move(vehicleID, from, to string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if from != "" && from != to {
		if members, ok := a.occupancy[from]; ok {
			delete(members, vehicleID)
			if len(members) == 0 {
				delete(a.occupancy, from)
			}
		}
	}
	if to != "" {
		members, ok := a.occupancy[to]
		if !ok {
			members = make(map[string]struct{})
			a.occupancy[to] = members
		}
		members[vehicleID] = struct{}{}
	}
}
