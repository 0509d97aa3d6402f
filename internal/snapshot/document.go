// Package snapshot defines the versioned, serializable form of a control
// center's state together with its codecs and stores.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/station"
	"github.com/skylane/utm/internal/vehicle"
)

// SchemaVersion is the document version written by this package.
const SchemaVersion = 1

// Sentinel errors for snapshot operations.
var (
	// ErrUnsupportedVersion indicates a document written by an unknown schema.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	// ErrUnknownFootprint indicates an obstacle footprint kind that cannot be decoded.
	ErrUnknownFootprint = errors.New("unknown footprint kind")
	// ErrNotFound indicates no snapshot exists for the requested id.
	ErrNotFound = errors.New("snapshot not found")
)

// Footprint kinds.
const (
	FootprintCircle    = "circle"
	FootprintRectangle = "rectangle"
)

// Document is schema v1. Times are unix milliseconds; zero means unset.
type Document struct {
	Version        int                `json:"version"`
	ID             string             `json:"id"`
	CenterID       string             `json:"center_id"`
	Operational    bool               `json:"operational"`
	CapturedAtMs   int64              `json:"captured_at_ms"`
	Airspace       *AirspaceDoc       `json:"airspace,omitempty"`
	Vehicles       []VehicleDoc       `json:"vehicles"`
	GroundStations []StationDoc       `json:"ground_stations"`
	Authorizations []AuthorizationDoc `json:"authorizations"`
}

// PositionDoc is a serialized geo.Position.
type PositionDoc struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Alt    float64 `json:"alt"`
	TimeMs int64   `json:"time_ms,omitempty"`
}

// AirspaceDoc is a serialized airspace.Model.
type AirspaceDoc struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Bounds    BoundsDoc     `json:"bounds"`
	Obstacles []ObstacleDoc `json:"obstacles"`
	Zones     []ZoneDoc     `json:"restricted_zones"`
	Routes    []RouteDoc    `json:"routes"`
}

// BoundsDoc is a serialized geo.Bounds.
type BoundsDoc struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// FootprintDoc is a tagged obstacle footprint.
type FootprintDoc struct {
	Kind   string  `json:"kind"`
	Radius float64 `json:"radius,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Length float64 `json:"length,omitempty"`
}

// ObstacleDoc is a serialized airspace.Obstacle.
type ObstacleDoc struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Position  PositionDoc  `json:"position"`
	Height    float64      `json:"height"`
	Footprint FootprintDoc `json:"footprint"`
}

// ZoneDoc is a serialized airspace.RestrictedZone.
type ZoneDoc struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Boundary  [][2]float64 `json:"boundary"`
	MinAlt    float64      `json:"min_alt"`
	MaxAlt    float64      `json:"max_alt"`
	Reason    string       `json:"reason"`
	Permanent bool         `json:"permanent"`
}

// RouteDoc is a serialized airspace.Route with its segments.
type RouteDoc struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Waypoints []PositionDoc `json:"waypoints"`
	MinAlt    float64       `json:"min_alt"`
	MaxAlt    float64       `json:"max_alt"`
	MaxSpeed  float64       `json:"max_speed"`
	Active    bool          `json:"active"`
	Segments  []SegmentDoc  `json:"segments"`
}

// SegmentDoc is a serialized airspace.RouteSegment.
type SegmentDoc struct {
	ID         string      `json:"id"`
	Start      PositionDoc `json:"start"`
	End        PositionDoc `json:"end"`
	Direction  string      `json:"direction"`
	Altitude   float64     `json:"altitude"`
	SpeedLimit float64     `json:"speed_limit"`
	Capacity   int         `json:"capacity"`
}

// VehicleDoc is a serialized vehicle.Vehicle.
type VehicleDoc struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Automation  string       `json:"automation"`
	MaxSpeed    float64      `json:"max_speed"`
	MaxAltitude float64      `json:"max_altitude"`
	Position    *PositionDoc `json:"position,omitempty"`
	Velocity    float64      `json:"velocity"`
	Heading     float64      `json:"heading"`
	Fuel        float64      `json:"fuel"`
	Status      string       `json:"status"`
	SegmentID   string       `json:"segment_id,omitempty"`
}

// StationDoc is a serialized station.GroundStation.
type StationDoc struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Position       PositionDoc `json:"position"`
	RangeMeters    float64     `json:"range_m"`
	MaxConnections int         `json:"max_connections"`
	Operational    bool        `json:"operational"`
}

// AuthorizationDoc is a serialized vehicle.Authorization.
type AuthorizationDoc struct {
	ID              string      `json:"id"`
	VehicleID       string      `json:"vehicle_id"`
	Departure       PositionDoc `json:"departure"`
	Destination     PositionDoc `json:"destination"`
	RouteID         string      `json:"route_id,omitempty"`
	Status          string      `json:"status"`
	RequestedAtMs   int64       `json:"requested_at_ms"`
	AuthorizedAtMs  int64       `json:"authorized_at_ms,omitempty"`
	ValidUntilMs    int64       `json:"valid_until_ms,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
}

// FromSnapshot converts a center snapshot into a new document.
func FromSnapshot(s control.Snapshot) *Document {
	doc := &Document{
		Version:        SchemaVersion,
		ID:             uuid.NewString(),
		CenterID:       s.CenterID,
		Operational:    s.Operational,
		CapturedAtMs:   toMillis(s.CapturedAt),
		Vehicles:       make([]VehicleDoc, 0, len(s.Vehicles)),
		GroundStations: make([]StationDoc, 0, len(s.GroundStations)),
		Authorizations: make([]AuthorizationDoc, 0, len(s.Authorizations)),
	}
	if s.Airspace != nil {
		doc.Airspace = airspaceDoc(s.Airspace)
	}
	for _, v := range s.Vehicles {
		vd := VehicleDoc{
			ID:          v.ID(),
			Name:        v.Name(),
			Category:    string(v.Category()),
			Automation:  string(v.Automation()),
			MaxSpeed:    v.MaxSpeed(),
			MaxAltitude: v.MaxAltitude(),
			Velocity:    v.Velocity(),
			Heading:     v.Heading(),
			Fuel:        v.Fuel(),
			Status:      string(v.Status()),
			SegmentID:   v.SegmentID(),
		}
		if p, ok := v.Position(); ok {
			pd := positionDoc(p)
			vd.Position = &pd
		}
		doc.Vehicles = append(doc.Vehicles, vd)
	}
	for _, g := range s.GroundStations {
		doc.GroundStations = append(doc.GroundStations, StationDoc{
			ID:             g.ID,
			Name:           g.Name,
			Position:       positionDoc(g.Position),
			RangeMeters:    g.RangeMeters,
			MaxConnections: g.MaxConnections,
			Operational:    g.Operational,
		})
	}
	for _, a := range s.Authorizations {
		doc.Authorizations = append(doc.Authorizations, AuthorizationDoc{
			ID:              a.ID,
			VehicleID:       a.VehicleID,
			Departure:       positionDoc(a.Departure),
			Destination:     positionDoc(a.Destination),
			RouteID:         a.RouteID,
			Status:          string(a.Status),
			RequestedAtMs:   toMillis(a.RequestedAt),
			AuthorizedAtMs:  toMillis(a.AuthorizedAt),
			ValidUntilMs:    toMillis(a.ValidUntil),
			RejectionReason: a.RejectionReason,
		})
	}
	return doc
}

func airspaceDoc(m *airspace.Model) *AirspaceDoc {
	b := m.Bounds()
	ad := &AirspaceDoc{
		ID:     m.ID(),
		Name:   m.Name(),
		Bounds: BoundsDoc{MinLat: b.MinLat, MinLon: b.MinLon, MaxLat: b.MaxLat, MaxLon: b.MaxLon},
	}
	for o := range m.Obstacles() {
		ad.Obstacles = append(ad.Obstacles, ObstacleDoc{
			ID:        o.ID,
			Name:      o.Name,
			Position:  positionDoc(o.Position),
			Height:    o.Height,
			Footprint: footprintDoc(o.Footprint),
		})
	}
	for z := range m.RestrictedZones() {
		zd := ZoneDoc{
			ID:        z.ID,
			Name:      z.Name,
			MinAlt:    z.MinAlt,
			MaxAlt:    z.MaxAlt,
			Reason:    z.Reason,
			Permanent: z.Permanent,
			Boundary:  make([][2]float64, 0, len(z.Boundary)),
		}
		for _, p := range z.Boundary {
			zd.Boundary = append(zd.Boundary, [2]float64{p.Lat, p.Lon})
		}
		ad.Zones = append(ad.Zones, zd)
	}
	for r := range m.Routes() {
		rd := RouteDoc{
			ID:       r.ID,
			Name:     r.Name,
			MinAlt:   r.MinAlt,
			MaxAlt:   r.MaxAlt,
			MaxSpeed: r.MaxSpeed,
			Active:   r.Active,
		}
		for _, w := range r.Waypoints {
			rd.Waypoints = append(rd.Waypoints, positionDoc(w))
		}
		for _, s := range m.RouteSegments(r.ID) {
			rd.Segments = append(rd.Segments, SegmentDoc{
				ID:         s.ID,
				Start:      positionDoc(s.Start),
				End:        positionDoc(s.End),
				Direction:  string(s.Direction),
				Altitude:   s.Altitude,
				SpeedLimit: s.SpeedLimit,
				Capacity:   s.Capacity,
			})
		}
		ad.Routes = append(ad.Routes, rd)
	}
	return ad
}

func footprintDoc(f airspace.Footprint) FootprintDoc {
	switch fp := f.(type) {
	case airspace.CircleFootprint:
		return FootprintDoc{Kind: FootprintCircle, Radius: fp.Radius}
	case airspace.RectFootprint:
		return FootprintDoc{Kind: FootprintRectangle, Width: fp.Width, Length: fp.Length}
	default:
		return FootprintDoc{Kind: FootprintCircle}
	}
}

// Snapshot converts the document back into a center snapshot.
func (d *Document) Snapshot() (control.Snapshot, error) {
	if d.Version != SchemaVersion {
		return control.Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, d.Version)
	}

	s := control.Snapshot{
		CenterID:    d.CenterID,
		Operational: d.Operational,
		CapturedAt:  fromMillis(d.CapturedAtMs),
	}

	if d.Airspace != nil {
		m, err := d.Airspace.model()
		if err != nil {
			return control.Snapshot{}, err
		}
		s.Airspace = m
	}

	for _, vd := range d.Vehicles {
		v, err := vehicle.New(vehicle.Spec{
			ID:          vd.ID,
			Name:        vd.Name,
			Category:    vehicle.Category(vd.Category),
			Automation:  vehicle.AutomationLevel(vd.Automation),
			MaxSpeed:    vd.MaxSpeed,
			MaxAltitude: vd.MaxAltitude,
		})
		if err != nil {
			return control.Snapshot{}, fmt.Errorf("vehicle %q: %w", vd.ID, err)
		}
		if vd.Position != nil {
			v.SetPosition(vd.Position.position())
		}
		v.SetVelocity(vd.Velocity)
		v.SetHeading(vd.Heading)
		v.SetFuel(vd.Fuel)
		v.SetStatus(vehicle.Status(vd.Status))
		v.SetSegmentID(vd.SegmentID)
		s.Vehicles = append(s.Vehicles, v)
	}

	for _, g := range d.GroundStations {
		s.GroundStations = append(s.GroundStations, station.GroundStation{
			ID:             g.ID,
			Name:           g.Name,
			Position:       g.Position.position(),
			RangeMeters:    g.RangeMeters,
			MaxConnections: g.MaxConnections,
			Operational:    g.Operational,
		})
	}

	for _, a := range d.Authorizations {
		s.Authorizations = append(s.Authorizations, vehicle.Authorization{
			ID:              a.ID,
			VehicleID:       a.VehicleID,
			Departure:       a.Departure.position(),
			Destination:     a.Destination.position(),
			RouteID:         a.RouteID,
			Status:          vehicle.AuthorizationStatus(a.Status),
			RequestedAt:     fromMillis(a.RequestedAtMs),
			AuthorizedAt:    fromMillis(a.AuthorizedAtMs),
			ValidUntil:      fromMillis(a.ValidUntilMs),
			RejectionReason: a.RejectionReason,
		})
	}
	return s, nil
}

func (a *AirspaceDoc) model() (*airspace.Model, error) {
	m, err := airspace.NewModel(a.ID, a.Name, geo.Bounds{
		MinLat: a.Bounds.MinLat,
		MinLon: a.Bounds.MinLon,
		MaxLat: a.Bounds.MaxLat,
		MaxLon: a.Bounds.MaxLon,
	})
	if err != nil {
		return nil, err
	}
	for _, o := range a.Obstacles {
		var fp airspace.Footprint
		switch o.Footprint.Kind {
		case FootprintCircle:
			fp = airspace.CircleFootprint{Radius: o.Footprint.Radius}
		case FootprintRectangle:
			fp = airspace.RectFootprint{Width: o.Footprint.Width, Length: o.Footprint.Length}
		default:
			return nil, fmt.Errorf("obstacle %q: %w: %q", o.ID, ErrUnknownFootprint, o.Footprint.Kind)
		}
		err := m.AddObstacle(airspace.Obstacle{
			ID:        o.ID,
			Name:      o.Name,
			Position:  o.Position.position(),
			Height:    o.Height,
			Footprint: fp,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, z := range a.Zones {
		boundary := make([]geo.Point, 0, len(z.Boundary))
		for _, p := range z.Boundary {
			boundary = append(boundary, geo.Point{Lat: p[0], Lon: p[1]})
		}
		err := m.AddRestrictedZone(airspace.RestrictedZone{
			ID:        z.ID,
			Name:      z.Name,
			Boundary:  boundary,
			MinAlt:    z.MinAlt,
			MaxAlt:    z.MaxAlt,
			Reason:    z.Reason,
			Permanent: z.Permanent,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, r := range a.Routes {
		route := airspace.Route{
			ID:       r.ID,
			Name:     r.Name,
			MinAlt:   r.MinAlt,
			MaxAlt:   r.MaxAlt,
			MaxSpeed: r.MaxSpeed,
			Active:   r.Active,
		}
		for _, w := range r.Waypoints {
			route.Waypoints = append(route.Waypoints, w.position())
		}
		segs := make([]airspace.RouteSegment, 0, len(r.Segments))
		for _, sd := range r.Segments {
			segs = append(segs, airspace.RouteSegment{
				ID:         sd.ID,
				Start:      sd.Start.position(),
				End:        sd.End.position(),
				Direction:  airspace.Direction(sd.Direction),
				Altitude:   sd.Altitude,
				SpeedLimit: sd.SpeedLimit,
				Capacity:   sd.Capacity,
			})
		}
		if err := m.AddRoute(route, segs...); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func positionDoc(p geo.Position) PositionDoc {
	return PositionDoc{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt, TimeMs: toMillis(p.Timestamp)}
}

func (p PositionDoc) position() geo.Position {
	return geo.Position{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt, Timestamp: fromMillis(p.TimeMs)}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
