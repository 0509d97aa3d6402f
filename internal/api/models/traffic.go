package models

import (
	"math"
	"time"

	"github.com/skylane/utm/internal/collision"
	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/rules"
	"github.com/skylane/utm/internal/station"
	"github.com/skylane/utm/internal/vehicle"
)

// VehicleSpec describes a vehicle in authorization and registration requests.
type VehicleSpec struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name,omitempty"`
	Category    vehicle.Category        `json:"category,omitempty"`
	Automation  vehicle.AutomationLevel `json:"automation,omitempty"`
	MaxSpeed    float64                 `json:"maxSpeed,omitempty"`
	MaxAltitude float64                 `json:"maxAltitude,omitempty"`
}

// Validate returns field errors for the vehicle description under field.
func (s VehicleSpec) Validate(field string) []FieldError {
	var errs []FieldError
	if s.ID == "" {
		errs = append(errs, FieldError{Field: field + ".id", Message: "required", Code: "REQUIRED"})
	}
	if s.MaxSpeed < 0 {
		errs = append(errs, FieldError{Field: field + ".maxSpeed", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	if s.MaxAltitude < 0 {
		errs = append(errs, FieldError{Field: field + ".maxAltitude", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	return errs
}

// Vehicle builds the domain vehicle.
func (s VehicleSpec) Vehicle() (*vehicle.Vehicle, error) {
	return vehicle.New(vehicle.Spec{
		ID:          s.ID,
		Name:        s.Name,
		Category:    s.Category,
		Automation:  s.Automation,
		MaxSpeed:    s.MaxSpeed,
		MaxAltitude: s.MaxAltitude,
	})
}

// AuthorizationRequest asks for permission to fly between two points.
type AuthorizationRequest struct {
	Vehicle     VehicleSpec `json:"vehicle"`
	Departure   Position    `json:"departure"`
	Destination Position    `json:"destination"`
}

// Validate returns field errors for the request.
func (r AuthorizationRequest) Validate() []FieldError {
	errs := r.Vehicle.Validate("vehicle")
	errs = append(errs, r.Departure.Validate("departure")...)
	return append(errs, r.Destination.Validate("destination")...)
}

// RegisterRequest admits an authorized vehicle into active traffic. A
// missing position places the vehicle at its authorized departure.
type RegisterRequest struct {
	Vehicle  VehicleSpec `json:"vehicle"`
	Position *Position   `json:"position,omitempty"`
}

// Validate returns field errors for the request.
func (r RegisterRequest) Validate() []FieldError {
	errs := r.Vehicle.Validate("vehicle")
	if r.Position != nil {
		errs = append(errs, r.Position.Validate("position")...)
	}
	return errs
}

// TelemetryUpdate is one vehicle report. Omitted fields are left unchanged.
type TelemetryUpdate struct {
	Position Position        `json:"position"`
	Velocity *float64        `json:"velocity,omitempty"`
	Heading  *float64        `json:"heading,omitempty"`
	Fuel     *float64        `json:"fuel,omitempty"`
	Status   *vehicle.Status `json:"status,omitempty"`
}

// Validate returns field errors for the update.
func (u TelemetryUpdate) Validate() []FieldError {
	errs := u.Position.Validate("position")
	for field, v := range map[string]*float64{"velocity": u.Velocity, "heading": u.Heading, "fuel": u.Fuel} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			errs = append(errs, FieldError{Field: field, Message: "must be a finite number", Code: "INVALID"})
		}
	}
	if u.Status != nil && !u.Status.Valid() {
		errs = append(errs, FieldError{Field: "status", Message: "unknown status", Code: "INVALID"})
	}
	return errs
}

// Telemetry converts the update for the control center.
func (u TelemetryUpdate) Telemetry(now time.Time) control.Telemetry {
	return control.Telemetry{
		Position: u.Position.Geo(now),
		Velocity: u.Velocity,
		Heading:  u.Heading,
		Fuel:     u.Fuel,
		Status:   u.Status,
	}
}

// Vehicle is the renderer view of an active vehicle.
type Vehicle struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name,omitempty"`
	Category      vehicle.Category        `json:"category"`
	Automation    vehicle.AutomationLevel `json:"automation"`
	Status        vehicle.Status          `json:"status"`
	Position      *Position               `json:"position,omitempty"`
	Velocity      float64                 `json:"velocity"`
	Heading       float64                 `json:"heading"`
	Fuel          float64                 `json:"fuel"`
	MaxSpeed      float64                 `json:"maxSpeed,omitempty"`
	MaxAltitude   float64                 `json:"maxAltitude,omitempty"`
	SegmentID     string                  `json:"segmentId,omitempty"`
	GroundStation string                  `json:"groundStation,omitempty"`
}

// NewVehicle converts a vehicle view.
func NewVehicle(v vehicle.Reader, groundStation string) Vehicle {
	out := Vehicle{
		ID:            v.ID(),
		Name:          v.Name(),
		Category:      v.Category(),
		Automation:    v.Automation(),
		Status:        v.Status(),
		Velocity:      v.Velocity(),
		Heading:       v.Heading(),
		Fuel:          v.Fuel(),
		MaxSpeed:      v.MaxSpeed(),
		MaxAltitude:   v.MaxAltitude(),
		SegmentID:     v.SegmentID(),
		GroundStation: groundStation,
	}
	if p, ok := v.Position(); ok {
		pos := NewPosition(p)
		out.Position = &pos
	}
	return out
}

// VehicleList wraps a vehicle listing.
type VehicleList struct {
	Count    int       `json:"count"`
	Vehicles []Vehicle `json:"vehicles"`
}

// Authorization is a flight authorization record.
type Authorization struct {
	ID              string                      `json:"id"`
	VehicleID       string                      `json:"vehicleId"`
	Status          vehicle.AuthorizationStatus `json:"status"`
	Departure       Position                    `json:"departure"`
	Destination     Position                    `json:"destination"`
	RouteID         string                      `json:"routeId,omitempty"`
	RequestedAt     Timestamp                   `json:"requestedAt"`
	AuthorizedAt    *Timestamp                  `json:"authorizedAt,omitempty"`
	ValidUntil      *Timestamp                  `json:"validUntil,omitempty"`
	RejectionReason string                      `json:"rejectionReason,omitempty"`
}

// NewAuthorization converts an authorization record.
func NewAuthorization(a vehicle.Authorization) Authorization {
	return Authorization{
		ID:              a.ID,
		VehicleID:       a.VehicleID,
		Status:          a.Status,
		Departure:       NewPosition(a.Departure),
		Destination:     NewPosition(a.Destination),
		RouteID:         a.RouteID,
		RequestedAt:     Timestamp(a.RequestedAt),
		AuthorizedAt:    timestampPtr(a.AuthorizedAt),
		ValidUntil:      timestampPtr(a.ValidUntil),
		RejectionReason: a.RejectionReason,
	}
}

// Rule identifies a traffic rule in an update result.
type Rule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
}

func newRules(infos []rules.Info) []Rule {
	out := make([]Rule, 0, len(infos))
	for _, i := range infos {
		out = append(out, Rule{ID: i.ID, Name: i.Name, Type: string(i.Type), Priority: i.Priority})
	}
	return out
}

// UpdateResult is the outcome of a telemetry update.
type UpdateResult struct {
	Applied       bool   `json:"applied"`
	Stale         bool   `json:"stale,omitempty"`
	OutOfBounds   bool   `json:"outOfBounds,omitempty"`
	Violations    []Rule `json:"violations"`
	Warnings      []Rule `json:"warnings"`
	SegmentID     string `json:"segmentId,omitempty"`
	Compliant     bool   `json:"compliant"`
	GroundStation string `json:"groundStation,omitempty"`
}

// NewUpdateResult converts an update result.
func NewUpdateResult(r *control.UpdateResult) UpdateResult {
	return UpdateResult{
		Applied:       r.Applied,
		Stale:         r.Stale,
		OutOfBounds:   r.OutOfBounds,
		Violations:    newRules(r.Violations),
		Warnings:      newRules(r.Warnings),
		SegmentID:     r.SegmentID,
		Compliant:     r.Compliant,
		GroundStation: r.GroundStation,
	}
}

// Risk is a scored vehicle pair. TimeToCollision is null when the vehicles
// are not closing.
type Risk struct {
	VehicleA           string          `json:"vehicleA"`
	VehicleB           string          `json:"vehicleB"`
	Score              float64         `json:"score"`
	Level              collision.Level `json:"level"`
	Distance           float64         `json:"distance"`
	HorizontalDistance float64         `json:"horizontalDistance"`
	VerticalDistance   float64         `json:"verticalDistance"`
	TimeToCollision    Seconds         `json:"timeToCollision"`
	Action             string          `json:"action"`
	DetectedAt         Timestamp       `json:"detectedAt"`
}

// NewRisks converts collision risks.
func NewRisks(risks []collision.Risk) []Risk {
	out := make([]Risk, 0, len(risks))
	for _, r := range risks {
		out = append(out, Risk{
			VehicleA:           r.VehicleA,
			VehicleB:           r.VehicleB,
			Score:              r.Score,
			Level:              r.Level,
			Distance:           r.Distance,
			HorizontalDistance: r.HorizontalDistance,
			VerticalDistance:   r.VerticalDistance,
			TimeToCollision:    Seconds(r.TimeToCollision),
			Action:             string(r.Action),
			DetectedAt:         Timestamp(r.DetectedAt),
		})
	}
	return out
}

// Stats aggregates traffic counts.
type Stats struct {
	CenterID          string                              `json:"centerId"`
	Operational       bool                                `json:"operational"`
	ActiveVehicles    int                                 `json:"activeVehicles"`
	MaxActiveVehicles int                                 `json:"maxActiveVehicles"`
	ByStatus          map[vehicle.Status]int              `json:"byStatus"`
	Authorizations    map[vehicle.AuthorizationStatus]int `json:"authorizations"`
	GroundStations    int                                 `json:"groundStations"`
	ConnectedVehicles int                                 `json:"connectedVehicles"`
	SegmentOccupancy  map[string]int                      `json:"segmentOccupancy"`
}

// NewStats converts center stats.
func NewStats(s control.Stats) Stats {
	return Stats{
		CenterID:          s.CenterID,
		Operational:       s.Operational,
		ActiveVehicles:    s.ActiveVehicles,
		MaxActiveVehicles: s.MaxActiveVehicles,
		ByStatus:          s.ByStatus,
		Authorizations:    s.Authorizations,
		GroundStations:    s.GroundStations,
		ConnectedVehicles: s.ConnectedVehicles,
		SegmentOccupancy:  s.SegmentOccupancy,
	}
}

// GroundStation is a communication site with its connection count.
type GroundStation struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Position       Position `json:"position"`
	RangeMeters    float64  `json:"rangeMeters"`
	MaxConnections int      `json:"maxConnections"`
	Operational    bool     `json:"operational"`
	Connections    int      `json:"connections"`
}

// NewGroundStations converts station statuses.
func NewGroundStations(statuses []station.Status) []GroundStation {
	out := make([]GroundStation, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, GroundStation{
			ID:             s.Station.ID,
			Name:           s.Station.Name,
			Position:       NewPosition(s.Station.Position),
			RangeMeters:    s.Station.RangeMeters,
			MaxConnections: s.Station.MaxConnections,
			Operational:    s.Station.Operational,
			Connections:    s.Connections,
		})
	}
	return out
}

// OperationalRequest toggles a center or ground station.
type OperationalRequest struct {
	Operational *bool `json:"operational"`
}
