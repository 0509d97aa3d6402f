package airspace

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/brunoga/deep"

	"github.com/skylane/utm/internal/geo"
)

// Model is the airspace a control center operates in. It is safe for
// concurrent use; reads vastly outnumber writes.
type Model struct {
	id     string
	name   string
	bounds geo.Bounds

	mu        sync.RWMutex
	obstacles []Obstacle
	zones     []RestrictedZone
	routes    []*Route
	routeIdx  map[string]*Route
	segments  []*RouteSegment
	segIdx    map[string]*RouteSegment
}

// NewModel creates an empty airspace over bounds.
func NewModel(id, name string, bounds geo.Bounds) (*Model, error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidBounds, bounds)
	}
	return &Model{
		id:       id,
		name:     name,
		bounds:   bounds,
		routeIdx: make(map[string]*Route),
		segIdx:   make(map[string]*RouteSegment),
	}, nil
}

// ID returns the airspace identifier.
func (m *Model) ID() string { return m.id }

// Name returns the human-readable airspace name.
func (m *Model) Name() string { return m.name }

// Bounds returns the operating area.
func (m *Model) Bounds() geo.Bounds { return m.bounds }

// AddObstacle registers an obstacle.
func (m *Model) AddObstacle(o Obstacle) error {
	if o.ID == "" {
		return fmt.Errorf("obstacle: %w", ErrMissingID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.obstacles {
		if existing.ID == o.ID {
			return fmt.Errorf("obstacle %s: %w", o.ID, ErrDuplicateID)
		}
	}
	m.obstacles = append(m.obstacles, o)
	return nil
}

// AddRestrictedZone registers a restricted zone. Zones with fewer than three
// boundary points are accepted but never contain any position.
func (m *Model) AddRestrictedZone(z RestrictedZone) error {
	if z.ID == "" {
		return fmt.Errorf("restricted zone: %w", ErrMissingID)
	}
	z.Boundary = deep.MustCopy(z.Boundary)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.zones {
		if existing.ID == z.ID {
			return fmt.Errorf("restricted zone %s: %w", z.ID, ErrDuplicateID)
		}
	}
	m.zones = append(m.zones, z)
	return nil
}

// AddRoute registers a route and its segments. When no segments are given,
// one forward segment is generated per consecutive waypoint pair at the mean
// altitude of its endpoints, limited to the route's max speed.
func (m *Model) AddRoute(r Route, segments ...RouteSegment) error {
	if r.ID == "" {
		return fmt.Errorf("route: %w", ErrMissingID)
	}
	if len(r.Waypoints) < 2 {
		return fmt.Errorf("route %s: %w: need at least 2 waypoints", r.ID, ErrInvalidRoute)
	}
	r.Waypoints = slices.Clone(r.Waypoints)

	if len(segments) == 0 {
		segments = generateSegments(r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.routeIdx[r.ID]; ok {
		return fmt.Errorf("route %s: %w", r.ID, ErrDuplicateID)
	}
	seen := make(map[string]struct{}, len(segments))
	for _, s := range segments {
		if s.ID == "" {
			return fmt.Errorf("route %s segment: %w", r.ID, ErrMissingID)
		}
		if s.Direction != "" && s.Direction != DirectionForward && s.Direction != DirectionReverse {
			return fmt.Errorf("segment %s: %w: unknown direction %q", s.ID, ErrInvalidRoute, s.Direction)
		}
		if _, ok := m.segIdx[s.ID]; ok {
			return fmt.Errorf("segment %s: %w", s.ID, ErrDuplicateID)
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("segment %s: %w", s.ID, ErrDuplicateID)
		}
		seen[s.ID] = struct{}{}
	}

	route := r
	route.SegmentIDs = make([]string, 0, len(segments))
	for _, s := range segments {
		seg := s
		seg.RouteID = r.ID
		if seg.Direction == "" {
			seg.Direction = DirectionForward
		}
		if seg.Capacity <= 0 {
			seg.Capacity = DefaultSegmentCapacity
		}
		m.segments = append(m.segments, &seg)
		m.segIdx[seg.ID] = &seg
		route.SegmentIDs = append(route.SegmentIDs, seg.ID)
	}
	m.routes = append(m.routes, &route)
	m.routeIdx[route.ID] = &route
	return nil
}

func generateSegments(r Route) []RouteSegment {
	out := make([]RouteSegment, 0, len(r.Waypoints)-1)
	for i := 0; i < len(r.Waypoints)-1; i++ {
		start, end := r.Waypoints[i], r.Waypoints[i+1]
		out = append(out, RouteSegment{
			ID:         fmt.Sprintf("%s-seg-%d", r.ID, i),
			RouteID:    r.ID,
			Start:      start,
			End:        end,
			Direction:  DirectionForward,
			Altitude:   (start.Alt + end.Alt) / 2,
			SpeedLimit: r.MaxSpeed,
			Capacity:   DefaultSegmentCapacity,
		})
	}
	return out
}

// SetRouteActive toggles whether a route is open for traffic.
func (m *Model) SetRouteActive(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routeIdx[id]
	if !ok {
		return fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	r.Active = active
	return nil
}

// Route returns the route with the given id.
func (m *Model) Route(id string) (Route, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routeIdx[id]
	if !ok {
		return Route{}, false
	}
	return *r, true
}

// Segment returns the segment with the given id.
func (m *Model) Segment(id string) (RouteSegment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.segIdx[id]
	if !ok {
		return RouteSegment{}, false
	}
	return *s, true
}

// Obstacles iterates over the registered obstacles in insertion order.
func (m *Model) Obstacles() iter.Seq[Obstacle] {
	return func(yield func(Obstacle) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, o := range m.obstacles {
			if !yield(o) {
				return
			}
		}
	}
}

// RestrictedZones iterates over the registered zones in insertion order.
func (m *Model) RestrictedZones() iter.Seq[RestrictedZone] {
	return func(yield func(RestrictedZone) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, z := range m.zones {
			if !yield(z) {
				return
			}
		}
	}
}

// Routes iterates over the route network in insertion order.
func (m *Model) Routes() iter.Seq[Route] {
	return func(yield func(Route) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, r := range m.routes {
			if !yield(*r) {
				return
			}
		}
	}
}

// Segments iterates over every segment in insertion order.
func (m *Model) Segments() iter.Seq[RouteSegment] {
	return func(yield func(RouteSegment) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, s := range m.segments {
			if !yield(*s) {
				return
			}
		}
	}
}

// Counts returns the number of obstacles, zones, routes and segments.
func (m *Model) Counts() (obstacles, zones, routes, segments int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.obstacles), len(m.zones), len(m.routes), len(m.segments)
}

// CheckPosition reports whether p is safe to occupy. When it is not, the
// returned reason names the first failing check.
func (m *Model) CheckPosition(p geo.Position) (bool, string) {
	if !m.bounds.Contains(p.Lat, p.Lon) {
		return false, "position outside airspace bounds"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.obstacles {
		if o.Contains(p) {
			return false, fmt.Sprintf("position inside obstacle %s", o.ID)
		}
	}
	for _, z := range m.zones {
		if z.Contains(p) {
			reason := fmt.Sprintf("position inside restricted zone %s", z.ID)
			if z.Reason != "" {
				reason += " (" + z.Reason + ")"
			}
			return false, reason
		}
	}
	return true, ""
}

// IsPositionSafe reports whether p is inside bounds and clear of every
// obstacle and restricted zone.
func (m *Model) IsPositionSafe(p geo.Position) bool {
	ok, _ := m.CheckPosition(p)
	return ok
}

// SafeAltitude returns the minimum altitude for passing over p: the highest
// covering obstacle top plus the safety margin, or p's own altitude plus the
// margin when nothing covers p.
func (m *Model) SafeAltitude(p geo.Position) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	safe := p.Alt + SafetyMarginMeters
	found := false
	for _, o := range m.obstacles {
		if !o.CoversHorizontally(p) {
			continue
		}
		top := o.Top() + SafetyMarginMeters
		if !found || top > safe {
			safe = top
			found = true
		}
	}
	return safe
}

// FindNearestSegment returns the segment with the closest endpoint within
// threshold meters of p. Ties keep the earlier segment.
func (m *Model) FindNearestSegment(p geo.Position, threshold float64) (RouteSegment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *RouteSegment
	bestDist := threshold
	for _, s := range m.segments {
		d := s.EndpointDistance(p)
		if !geo.Finite(d) || d > threshold {
			continue
		}
		if best == nil || d < bestDist {
			best = s
			bestDist = d
		}
	}
	if best == nil {
		return RouteSegment{}, false
	}
	return *best, true
}

// FindNearestRoute returns the active route with the closest waypoint within
// threshold meters of p. Ties keep the earlier route.
func (m *Model) FindNearestRoute(p geo.Position, threshold float64) (Route, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Route
	bestDist := threshold
	for _, r := range m.routes {
		if !r.Active {
			continue
		}
		for _, w := range r.Waypoints {
			d := w.HorizontalDistance(p)
			if !geo.Finite(d) || d > threshold {
				continue
			}
			if best == nil || d < bestDist {
				best = r
				bestDist = d
			}
		}
	}
	if best == nil {
		return Route{}, false
	}
	return *best, true
}

// SegmentsInDirection returns every segment travelling in dir.
func (m *Model) SegmentsInDirection(dir Direction) []RouteSegment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []RouteSegment
	for _, s := range m.segments {
		if s.Direction == dir {
			out = append(out, *s)
		}
	}
	return out
}

// RouteSegments returns the segments of one route in order.
func (m *Model) RouteSegments(routeID string) []RouteSegment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.routeIdx[routeID]
	if !ok {
		return nil
	}
	out := make([]RouteSegment, 0, len(r.SegmentIDs))
	for _, id := range r.SegmentIDs {
		if s, ok := m.segIdx[id]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// RoutesAtAltitude returns active routes whose altitude band, widened by
// tolerance on both sides, includes alt.
func (m *Model) RoutesAtAltitude(alt, tolerance float64) []Route {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Route
	for _, r := range m.routes {
		if !r.Active {
			continue
		}
		if alt >= r.MinAlt-tolerance && alt <= r.MaxAlt+tolerance {
			out = append(out, *r)
		}
	}
	return out
}

// ZonesContaining returns the ids of all restricted zones containing p.
func (m *Model) ZonesContaining(p geo.Position) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, z := range m.zones {
		if z.Contains(p) {
			ids = append(ids, z.ID)
		}
	}
	return slices.Clip(ids)
}
