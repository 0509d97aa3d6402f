package models

import (
	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/pkg/polyline"
)

// Airspace summarizes the loaded airspace model.
type Airspace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Bounds    Bounds `json:"bounds"`
	Obstacles int    `json:"obstacles"`
	Zones     int    `json:"zones"`
	Routes    int    `json:"routes"`
	Segments  int    `json:"segments"`
}

// NewAirspace summarizes m.
func NewAirspace(m *airspace.Model) Airspace {
	b := m.Bounds()
	obstacles, zones, routes, segments := m.Counts()
	return Airspace{
		ID:        m.ID(),
		Name:      m.Name(),
		Bounds:    Bounds{MinLat: b.MinLat, MinLon: b.MinLon, MaxLat: b.MaxLat, MaxLon: b.MaxLon},
		Obstacles: obstacles,
		Zones:     zones,
		Routes:    routes,
		Segments:  segments,
	}
}

// Segment is a directional route slice.
type Segment struct {
	ID         string             `json:"id"`
	Start      Position           `json:"start"`
	End        Position           `json:"end"`
	Direction  airspace.Direction `json:"direction"`
	Altitude   float64            `json:"altitude"`
	SpeedLimit float64            `json:"speedLimit"`
	Capacity   int                `json:"capacity"`
	Occupancy  int                `json:"occupancy"`
}

// Route is a route with its geometry encoded as a 3D polyline.
type Route struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Active    bool      `json:"active"`
	MinAlt    float64   `json:"minAlt"`
	MaxAlt    float64   `json:"maxAlt"`
	MaxSpeed  float64   `json:"maxSpeed"`
	Polyline  string    `json:"polyline"`
	LengthM   float64   `json:"lengthMeters"`
	Waypoints int       `json:"waypoints"`
	Segments  []Segment `json:"segments"`
}

// NewRoute converts a route and its segments. occupancy maps segment ids to
// current vehicle counts and may be nil.
func NewRoute(r airspace.Route, segments []airspace.RouteSegment, occupancy map[string]int) Route {
	coords := make([]polyline.Coordinate, 0, len(r.Waypoints))
	for _, w := range r.Waypoints {
		coords = append(coords, polyline.Coordinate{Lat: w.Lat, Lon: w.Lon, Alt: w.Alt})
	}
	out := Route{
		ID:        r.ID,
		Name:      r.Name,
		Active:    r.Active,
		MinAlt:    r.MinAlt,
		MaxAlt:    r.MaxAlt,
		MaxSpeed:  r.MaxSpeed,
		Polyline:  polyline.Encode3D(coords),
		LengthM:   polyline.Length(coords, true),
		Waypoints: len(coords),
		Segments:  make([]Segment, 0, len(segments)),
	}
	for _, s := range segments {
		out.Segments = append(out.Segments, Segment{
			ID:         s.ID,
			Start:      NewPosition(s.Start),
			End:        NewPosition(s.End),
			Direction:  s.Direction,
			Altitude:   s.Altitude,
			SpeedLimit: s.SpeedLimit,
			Capacity:   s.Capacity,
			Occupancy:  occupancy[s.ID],
		})
	}
	return out
}

// Zone is a restricted no-fly volume.
type Zone struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Boundary  [][2]float64 `json:"boundary"`
	MinAlt    float64      `json:"minAlt"`
	MaxAlt    float64      `json:"maxAlt"`
	Reason    string       `json:"reason,omitempty"`
	Permanent bool         `json:"permanent"`
}

// NewZone converts a restricted zone. Boundary points are [lat, lon] pairs.
func NewZone(z airspace.RestrictedZone) Zone {
	boundary := make([][2]float64, 0, len(z.Boundary))
	for _, p := range z.Boundary {
		boundary = append(boundary, [2]float64{p.Lat, p.Lon})
	}
	return Zone{
		ID:        z.ID,
		Name:      z.Name,
		Boundary:  boundary,
		MinAlt:    z.MinAlt,
		MaxAlt:    z.MaxAlt,
		Reason:    z.Reason,
		Permanent: z.Permanent,
	}
}

// Obstacle is a fixed structure with its footprint.
type Obstacle struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Position Position `json:"position"`
	Height   float64  `json:"height"`
	Top      float64  `json:"top"`
	Shape    string   `json:"shape"`
	Radius   float64  `json:"radius,omitempty"`
	Width    float64  `json:"width,omitempty"`
	Length   float64  `json:"length,omitempty"`
}

// NewObstacle converts an obstacle.
func NewObstacle(o airspace.Obstacle) Obstacle {
	out := Obstacle{
		ID:       o.ID,
		Name:     o.Name,
		Position: NewPosition(o.Position),
		Height:   o.Height,
		Top:      o.Top(),
	}
	switch f := o.Footprint.(type) {
	case airspace.CircleFootprint:
		out.Shape = "circle"
		out.Radius = f.Radius
	case airspace.RectFootprint:
		out.Shape = "rectangle"
		out.Width = f.Width
		out.Length = f.Length
	}
	return out
}

// PositionCheck is the airspace safety verdict for a point.
type PositionCheck struct {
	Position     Position `json:"position"`
	Safe         bool     `json:"safe"`
	Reason       string   `json:"reason,omitempty"`
	SafeAltitude float64  `json:"safeAltitude"`
	Zones        []string `json:"zones"`
}

// NewPositionCheck builds a safety verdict for p.
func NewPositionCheck(m *airspace.Model, p geo.Position) PositionCheck {
	ok, reason := m.CheckPosition(p)
	zones := m.ZonesContaining(p)
	if zones == nil {
		zones = []string{}
	}
	return PositionCheck{
		Position:     NewPosition(p),
		Safe:         ok,
		Reason:       reason,
		SafeAltitude: m.SafeAltitude(p),
		Zones:        zones,
	}
}
