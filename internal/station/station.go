// Package station models ground stations and tracks which station each
// registered vehicle is connected to.
package station

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/skylane/utm/internal/geo"
)

// Sentinel errors for ground station operations.
var (
	ErrMissingID    = errors.New("ground station id is required")
	ErrDuplicateID  = errors.New("duplicate ground station id")
	ErrNotFound     = errors.New("ground station not found")
	ErrInvalidRange = errors.New("ground station range must be positive")
)

// GroundStation is a fixed communication site. A zero MaxConnections means
// unlimited.
type GroundStation struct {
	ID             string
	Name           string
	Position       geo.Position
	RangeMeters    float64
	MaxConnections int
	Operational    bool
}

// Covers reports whether p is within the station's range.
func (g GroundStation) Covers(p geo.Position) bool {
	return g.Position.HorizontalDistance(p) <= g.RangeMeters
}

// Status pairs a station with its current connection count.
type Status struct {
	Station     GroundStation
	Connections int
}

// Tracker keeps vehicle connectivity. It is safe for concurrent use.
type Tracker struct {
	mu         sync.RWMutex
	stations   []GroundStation
	links      map[string]string
	perStation map[string]int
}

// NewTracker creates a tracker with the given stations.
func NewTracker(stations ...GroundStation) (*Tracker, error) {
	t := &Tracker{
		links:      make(map[string]string),
		perStation: make(map[string]int),
	}
	for _, s := range stations {
		if err := t.AddStation(s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddStation registers a ground station.
func (t *Tracker) AddStation(s GroundStation) error {
	if s.ID == "" {
		return ErrMissingID
	}
	if s.RangeMeters <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRange, s.ID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexOf(s.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
	}
	t.stations = append(t.stations, s)
	return nil
}

// SetOperational changes a station's state. Taking a station down drops
// its connections.
func (t *Tracker) SetOperational(id string, operational bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t.stations[i].Operational = operational
	if !operational {
		for vid, sid := range t.links {
			if sid == id {
				delete(t.links, vid)
			}
		}
		delete(t.perStation, id)
	}
	return nil
}

// Connect links a vehicle at p to the nearest operational station in range
// that has spare capacity, replacing any previous link. It returns the
// chosen station id, or false when no station can serve the vehicle.
func (t *Tracker) Connect(vehicleID string, p geo.Position) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, hadPrev := t.links[vehicleID]
	best := -1
	bestDist := 0.0
	for i, s := range t.stations {
		if !s.Operational {
			continue
		}
		d := s.Position.HorizontalDistance(p)
		if d > s.RangeMeters {
			continue
		}
		load := t.perStation[s.ID]
		if hadPrev && prev == s.ID {
			load--
		}
		if s.MaxConnections > 0 && load >= s.MaxConnections {
			continue
		}
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	if hadPrev {
		t.unlink(vehicleID, prev)
	}
	if best < 0 {
		return "", false
	}
	id := t.stations[best].ID
	t.links[vehicleID] = id
	t.perStation[id]++
	return id, true
}

// Disconnect drops a vehicle's link.
func (t *Tracker) Disconnect(vehicleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sid, ok := t.links[vehicleID]; ok {
		t.unlink(vehicleID, sid)
	}
}

// StationFor returns the station a vehicle is connected to.
func (t *Tracker) StationFor(vehicleID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sid, ok := t.links[vehicleID]
	return sid, ok
}

// Stations returns every station with its connection count, in insertion order.
func (t *Tracker) Stations() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Status, 0, len(t.stations))
	for _, s := range t.stations {
		out = append(out, Status{Station: s, Connections: t.perStation[s.ID]})
	}
	return out
}

// Connected returns the sorted ids of vehicles linked to a station.
func (t *Tracker) Connected(stationID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []string
	for vid, sid := range t.links {
		if sid == stationID {
			ids = append(ids, vid)
		}
	}
	slices.Sort(ids)
	return ids
}

func (t *Tracker) unlink(vehicleID, stationID string) {
	delete(t.links, vehicleID)
	if t.perStation[stationID] <= 1 {
		delete(t.perStation, stationID)
		return
	}
	t.perStation[stationID]--
}

func (t *Tracker) indexOf(id string) int {
	return slices.IndexFunc(t.stations, func(s GroundStation) bool { return s.ID == id })
}
