// Package airspace models the static geometry vehicles fly through:
// obstacles, restricted zones, the route network and altitude layers.
package airspace

import (
	"errors"
	"math"

	"github.com/skylane/utm/internal/geo"
)

// Sentinel errors for airspace operations.
var (
	// ErrInvalidBounds indicates the model bounds have no positive extent.
	ErrInvalidBounds = errors.New("invalid airspace bounds")
	// ErrInvalidRoute indicates a route definition cannot be used.
	ErrInvalidRoute = errors.New("invalid route")
	// ErrDuplicateID indicates an element with the same id already exists.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrMissingID indicates an element was added without an id.
	ErrMissingID = errors.New("missing id")
	// ErrNotFound indicates the requested element does not exist.
	ErrNotFound = errors.New("not found")
)

// SafetyMarginMeters is added on top of obstacles when computing a safe altitude.
const SafetyMarginMeters = 10.0

// Footprint is the horizontal shape of an obstacle. The set of
// implementations is closed: CircleFootprint and RectFootprint.
type Footprint interface {
	// EffectiveRadius returns the radius used for the containment test.
	EffectiveRadius() float64
	footprint()
}

// CircleFootprint is a circular obstacle base.
type CircleFootprint struct {
	Radius float64
}

func (CircleFootprint) footprint() {}

// EffectiveRadius returns the circle radius.
func (c CircleFootprint) EffectiveRadius() float64 { return c.Radius }

// RectFootprint is a rectangular obstacle base. Containment is tested
// against the circumscribed circle.
type RectFootprint struct {
	Width  float64
	Length float64
}

func (RectFootprint) footprint() {}

// EffectiveRadius returns the circumscribed radius of the rectangle, or zero
// when either side is not positive.
func (r RectFootprint) EffectiveRadius() float64 {
	if r.Width <= 0 || r.Length <= 0 {
		return 0
	}
	return math.Hypot(r.Width, r.Length) / 2
}

// Obstacle is a fixed structure. Position is the footprint center and its
// altitude is the obstacle base.
type Obstacle struct {
	ID        string
	Name      string
	Position  geo.Position
	Height    float64
	Footprint Footprint
}

// Top returns the altitude of the obstacle's highest point.
func (o Obstacle) Top() float64 {
	return o.Position.Alt + o.Height
}

// CoversHorizontally reports whether p lies within the obstacle footprint,
// ignoring altitude. Zero-sized footprints cover nothing.
func (o Obstacle) CoversHorizontally(p geo.Position) bool {
	if o.Footprint == nil {
		return false
	}
	r := o.Footprint.EffectiveRadius()
	if r <= 0 {
		return false
	}
	return o.Position.HorizontalDistance(p) <= r
}

// Contains reports whether p is inside the obstacle volume.
func (o Obstacle) Contains(p geo.Position) bool {
	return p.Alt <= o.Top() && o.CoversHorizontally(p)
}

// RestrictedZone is a no-fly volume: a boundary polygon with an altitude band.
type RestrictedZone struct {
	ID        string
	Name      string
	Boundary  []geo.Point
	MinAlt    float64
	MaxAlt    float64
	Reason    string
	Permanent bool
}

// Degenerate reports whether the boundary is too small to enclose anything.
func (z RestrictedZone) Degenerate() bool {
	return len(z.Boundary) < 3
}

// Contains reports whether p lies inside the zone. The altitude band is
// inclusive on both ends. A zone with fewer than three boundary points
// contains nothing.
func (z RestrictedZone) Contains(p geo.Position) bool {
	if z.Degenerate() {
		return false
	}
	if p.Alt < z.MinAlt || p.Alt > z.MaxAlt {
		return false
	}
	return geo.PointInPolygon(p.Lat, p.Lon, z.Boundary)
}

// Direction is the travel direction of a route segment.
type Direction string

const (
	// DirectionForward follows the route's waypoint order.
	DirectionForward Direction = "forward"
	// DirectionReverse runs against the waypoint order.
	DirectionReverse Direction = "reverse"
)

// Route is a named, ordered list of waypoints.
type Route struct {
	ID         string
	Name       string
	Waypoints  []geo.Position
	MinAlt     float64
	MaxAlt     float64
	MaxSpeed   float64
	Active     bool
	SegmentIDs []string
}

// DefaultSegmentCapacity is the vehicle capacity of generated segments.
const DefaultSegmentCapacity = 10

// RouteSegment is a directional slice of a route with fixed altitude,
// speed limit and capacity.
type RouteSegment struct {
	ID         string
	RouteID    string
	Start      geo.Position
	End        geo.Position
	Direction  Direction
	Altitude   float64
	SpeedLimit float64
	Capacity   int
}

// EndpointDistance returns the horizontal distance from p to the closer of
// the two segment endpoints.
func (s RouteSegment) EndpointDistance(p geo.Position) float64 {
	return math.Min(s.Start.HorizontalDistance(p), s.End.HorizontalDistance(p))
}

// Length returns the horizontal length of the segment.
func (s RouteSegment) Length() float64 {
	return s.Start.HorizontalDistance(s.End)
}
