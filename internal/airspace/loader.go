package airspace

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skylane/utm/internal/geo"
)

// Definition is the YAML document describing an airspace.
type Definition struct {
	ID        string               `yaml:"id"`
	Name      string               `yaml:"name"`
	Bounds    BoundsDefinition     `yaml:"bounds"`
	Obstacles []ObstacleDefinition `yaml:"obstacles"`
	Zones     []ZoneDefinition     `yaml:"restricted_zones"`
	Routes    []RouteDefinition    `yaml:"routes"`
}

// BoundsDefinition is the operating area.
type BoundsDefinition struct {
	MinLat float64 `yaml:"min_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLat float64 `yaml:"max_lat"`
	MaxLon float64 `yaml:"max_lon"`
}

// PointDefinition is a waypoint or polygon vertex.
type PointDefinition struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
	Alt float64 `yaml:"alt"`
}

// ObstacleDefinition describes one obstacle. Radius wins over Width and
// Length when both are set.
type ObstacleDefinition struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	Lat     float64 `yaml:"lat"`
	Lon     float64 `yaml:"lon"`
	BaseAlt float64 `yaml:"base_alt"`
	Height  float64 `yaml:"height"`
	Radius  float64 `yaml:"radius"`
	Width   float64 `yaml:"width"`
	Length  float64 `yaml:"length"`
}

// ZoneDefinition describes one restricted zone.
type ZoneDefinition struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Boundary  []PointDefinition `yaml:"boundary"`
	MinAlt    float64           `yaml:"min_alt"`
	MaxAlt    float64           `yaml:"max_alt"`
	Reason    string            `yaml:"reason"`
	Permanent bool              `yaml:"permanent"`
}

// RouteDefinition describes a route and, optionally, its segments.
type RouteDefinition struct {
	ID        string              `yaml:"id"`
	Name      string              `yaml:"name"`
	Waypoints []PointDefinition   `yaml:"waypoints"`
	MinAlt    float64             `yaml:"min_alt"`
	MaxAlt    float64             `yaml:"max_alt"`
	MaxSpeed  float64             `yaml:"max_speed"`
	Active    *bool               `yaml:"active"`
	Segments  []SegmentDefinition `yaml:"segments"`
}

// SegmentDefinition describes an explicit route segment.
type SegmentDefinition struct {
	ID         string          `yaml:"id"`
	Start      PointDefinition `yaml:"start"`
	End        PointDefinition `yaml:"end"`
	Direction  Direction       `yaml:"direction"`
	Altitude   float64         `yaml:"altitude"`
	SpeedLimit float64         `yaml:"speed_limit"`
	Capacity   int             `yaml:"capacity"`
}

// Footprint returns the footprint the definition describes.
func (d ObstacleDefinition) Footprint() Footprint {
	if d.Radius > 0 {
		return CircleFootprint{Radius: d.Radius}
	}
	if d.Width > 0 || d.Length > 0 {
		return RectFootprint{Width: d.Width, Length: d.Length}
	}
	return CircleFootprint{}
}

func (p PointDefinition) position() geo.Position {
	return geo.Position{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt}
}

// LoadFile reads an airspace definition from a YAML file.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read airspace file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Load parses a YAML airspace definition.
func Load(r io.Reader) (*Model, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse airspace definition: %w", err)
	}
	return def.Build()
}

// Build constructs a model from the definition.
func (d Definition) Build() (*Model, error) {
	m, err := NewModel(d.ID, d.Name, geo.Bounds{
		MinLat: d.Bounds.MinLat,
		MinLon: d.Bounds.MinLon,
		MaxLat: d.Bounds.MaxLat,
		MaxLon: d.Bounds.MaxLon,
	})
	if err != nil {
		return nil, err
	}

	for _, o := range d.Obstacles {
		err := m.AddObstacle(Obstacle{
			ID:        o.ID,
			Name:      o.Name,
			Position:  geo.Position{Lat: o.Lat, Lon: o.Lon, Alt: o.BaseAlt},
			Height:    o.Height,
			Footprint: o.Footprint(),
		})
		if err != nil {
			return nil, err
		}
	}

	for _, z := range d.Zones {
		boundary := make([]geo.Point, 0, len(z.Boundary))
		for _, p := range z.Boundary {
			boundary = append(boundary, geo.Point{Lat: p.Lat, Lon: p.Lon})
		}
		err := m.AddRestrictedZone(RestrictedZone{
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

	for _, rd := range d.Routes {
		active := true
		if rd.Active != nil {
			active = *rd.Active
		}
		r := Route{
			ID:       rd.ID,
			Name:     rd.Name,
			MinAlt:   rd.MinAlt,
			MaxAlt:   rd.MaxAlt,
			MaxSpeed: rd.MaxSpeed,
			Active:   active,
		}
		for _, w := range rd.Waypoints {
			r.Waypoints = append(r.Waypoints, w.position())
		}
		segs := make([]RouteSegment, 0, len(rd.Segments))
		for _, s := range rd.Segments {
			segs = append(segs, RouteSegment{
				ID:         s.ID,
				Start:      s.Start.position(),
				End:        s.End.position(),
				Direction:  s.Direction,
				Altitude:   s.Altitude,
				SpeedLimit: s.SpeedLimit,
				Capacity:   s.Capacity,
			})
		}
		if err := m.AddRoute(r, segs...); err != nil {
			return nil, err
		}
	}

	return m, nil
}
