// Package collision scores proximity risk between pairs of vehicles.
package collision

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Separation standards and scan parameters.
const (
	// MinHorizontalSeparation is the minimum horizontal distance in meters.
	MinHorizontalSeparation = 50.0
	// MinVerticalSeparation is the minimum vertical distance in meters.
	MinVerticalSeparation = 10.0
	// CheckRadius bounds the neighbor scan around a vehicle, in meters.
	CheckRadius = 500.0
	// PredictionHorizon is how far ahead trajectories are projected.
	PredictionHorizon = 30 * time.Second
	// DefaultMaxSpeed stands in for vehicles without a configured max speed, in m/s.
	DefaultMaxSpeed = 50.0
	// ApproachThreshold is the future-approach factor below which two
	// separated vehicles are not considered closing.
	ApproachThreshold = 0.3
)

// Level classifies a risk score.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

// String returns the upper-case level name.
func (l Level) String() string {
	if l < LevelLow || l > LevelCritical {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel converts a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown risk level %q", s)
}

// Action is the recommended response to a risk.
type Action string

const (
	ActionMonitor   Action = "continue monitoring"
	ActionAdjust    Action = "adjust speed or heading"
	ActionSeparate  Action = "change altitude or route immediately"
	ActionEmergency Action = "execute emergency avoidance maneuver"
)

// ActionFor derives the recommended action from a level.
func ActionFor(l Level) Action {
	switch l {
	case LevelCritical:
		return ActionEmergency
	case LevelHigh:
		return ActionSeparate
	case LevelMedium:
		return ActionAdjust
	default:
		return ActionMonitor
	}
}

// Risk is the scored proximity between two vehicles. Distances are meters;
// TimeToCollision is seconds and +Inf when the vehicles are not closing.
type Risk struct {
	VehicleA           string
	VehicleB           string
	Score              float64
	Level              Level
	Distance           float64
	HorizontalDistance float64
	VerticalDistance   float64
	TimeToCollision    float64
	Action             Action
	DetectedAt         time.Time
}

// SamePair reports whether both risks concern the same unordered vehicle pair.
func (r Risk) SamePair(o Risk) bool {
	return r.Key() == o.Key()
}

// Key identifies the unordered vehicle pair.
func (r Risk) Key() string {
	a, b := r.VehicleA, r.VehicleB
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Other returns the id of the vehicle in the pair that is not id.
func (r Risk) Other(id string) string {
	if r.VehicleA == id {
		return r.VehicleB
	}
	return r.VehicleA
}

// Closing reports whether a finite time to collision was estimated.
func (r Risk) Closing() bool {
	return !math.IsInf(r.TimeToCollision, 1)
}
