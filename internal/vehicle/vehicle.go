package vehicle

import (
	"math"

	"github.com/skylane/utm/internal/geo"
)

// Vehicle is a VTOL traffic participant. Setters keep its invariants:
// velocity is clamped to [0, MaxSpeed], altitude never exceeds MaxAltitude
// and stays in sync with the position, fuel is clamped to [0, 100] and
// heading is normalized to [0, 360). A zero MaxSpeed or MaxAltitude means
// unconstrained.
type Vehicle struct {
	id          string
	name        string
	category    Category
	automation  AutomationLevel
	maxSpeed    float64
	maxAltitude float64

	position  *geo.Position
	velocity  float64
	heading   float64
	fuel      float64
	status    Status
	segmentID string
}

// Spec holds the immutable attributes of a new vehicle.
type Spec struct {
	ID          string
	Name        string
	Category    Category
	Automation  AutomationLevel
	MaxSpeed    float64
	MaxAltitude float64
}

// New creates an idle vehicle with a full tank and no position.
func New(spec Spec) (*Vehicle, error) {
	if spec.ID == "" {
		return nil, ErrMissingID
	}
	automation := spec.Automation
	if automation == "" {
		automation = AutomationAutonomous
	}
	category := spec.Category
	if category == "" {
		category = CategoryCargo
	}
	return &Vehicle{
		id:          spec.ID,
		name:        spec.Name,
		category:    category,
		automation:  automation,
		maxSpeed:    math.Max(spec.MaxSpeed, 0),
		maxAltitude: math.Max(spec.MaxAltitude, 0),
		fuel:        100,
		status:      StatusIdle,
	}, nil
}

// Clone returns an independent copy of v.
func (v *Vehicle) Clone() *Vehicle {
	if v == nil {
		return nil
	}
	c := *v
	if v.position != nil {
		p := *v.position
		c.position = &p
	}
	return &c
}

func (v *Vehicle) ID() string                  { return v.id }
func (v *Vehicle) Name() string                { return v.name }
func (v *Vehicle) Category() Category          { return v.category }
func (v *Vehicle) Automation() AutomationLevel { return v.automation }
func (v *Vehicle) MaxSpeed() float64           { return v.maxSpeed }
func (v *Vehicle) MaxAltitude() float64        { return v.maxAltitude }
func (v *Vehicle) Velocity() float64           { return v.velocity }
func (v *Vehicle) Heading() float64            { return v.heading }
func (v *Vehicle) Fuel() float64               { return v.fuel }
func (v *Vehicle) Status() Status              { return v.status }
func (v *Vehicle) SegmentID() string           { return v.segmentID }

// Position returns the current position and whether one is known.
func (v *Vehicle) Position() (geo.Position, bool) {
	if v.position == nil {
		return geo.Position{}, false
	}
	return *v.position, true
}

// HasPosition reports whether the vehicle has been placed.
func (v *Vehicle) HasPosition() bool {
	return v.position != nil
}

// Altitude returns the altitude of the current position, or zero when the
// vehicle has no position.
func (v *Vehicle) Altitude() float64 {
	if v.position == nil {
		return 0
	}
	return v.position.Alt
}

// SetPosition places the vehicle, clamping altitude to MaxAltitude.
func (v *Vehicle) SetPosition(p geo.Position) {
	p.Alt = v.clampAltitude(p.Alt)
	v.position = &p
}

// ClearPosition forgets the vehicle's position.
func (v *Vehicle) ClearPosition() {
	v.position = nil
}

// SetAltitude changes the altitude of the current position. It is a no-op
// when the vehicle has no position.
func (v *Vehicle) SetAltitude(alt float64) {
	if v.position == nil {
		return
	}
	v.position.Alt = v.clampAltitude(alt)
}

// SetVelocity sets the scalar speed in m/s, clamped to [0, MaxSpeed].
func (v *Vehicle) SetVelocity(speed float64) {
	if math.IsNaN(speed) || speed < 0 {
		speed = 0
	}
	if v.maxSpeed > 0 && speed > v.maxSpeed {
		speed = v.maxSpeed
	}
	v.velocity = speed
}

// SetHeading sets the heading in degrees, normalized to [0, 360).
func (v *Vehicle) SetHeading(deg float64) {
	v.heading = geo.NormalizeHeading(deg)
}

// SetFuel sets the fuel level, clamped to [0, 100].
func (v *Vehicle) SetFuel(level float64) {
	if math.IsNaN(level) {
		level = 0
	}
	v.fuel = math.Min(math.Max(level, 0), 100)
}

// SetStatus changes the operating status. Unknown statuses are ignored.
func (v *Vehicle) SetStatus(s Status) {
	if s.Valid() {
		v.status = s
	}
}

// SetSegmentID records the route segment the vehicle is assigned to.
// An empty id clears the assignment.
func (v *Vehicle) SetSegmentID(id string) {
	v.segmentID = id
}

// EffectiveMaxSpeed returns MaxSpeed or fallback when unconstrained.
func (v *Vehicle) EffectiveMaxSpeed(fallback float64) float64 {
	if v.maxSpeed > 0 {
		return v.maxSpeed
	}
	return fallback
}

func (v *Vehicle) clampAltitude(alt float64) float64 {
	if v.maxAltitude > 0 && alt > v.maxAltitude {
		return v.maxAltitude
	}
	return alt
}

// Reader is a read-only view of a vehicle.
type Reader interface {
	ID() string
	Name() string
	Category() Category
	Automation() AutomationLevel
	MaxSpeed() float64
	MaxAltitude() float64
	Position() (geo.Position, bool)
	Altitude() float64
	Velocity() float64
	Heading() float64
	Fuel() float64
	Status() Status
	SegmentID() string
	Clone() *Vehicle
}

var _ Reader = (*Vehicle)(nil)
