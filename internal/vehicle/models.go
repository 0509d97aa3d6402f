// Package vehicle defines the traffic participants and their flight
// authorizations.
package vehicle

import (
	"errors"
	"time"
)

// Sentinel errors for vehicle operations.
var (
	// ErrNilVehicle indicates a required vehicle argument was nil.
	ErrNilVehicle = errors.New("vehicle is nil")
	// ErrMissingID indicates a vehicle without an identifier.
	ErrMissingID = errors.New("vehicle id is required")
)

// Category classifies the vehicle's mission.
type Category string

const (
	CategoryCargo       Category = "cargo"
	CategoryPassenger   Category = "passenger"
	CategoryEmergency   Category = "emergency"
	CategoryMaintenance Category = "maintenance"
	CategoryInspection  Category = "inspection"
)

// Status is the vehicle's operating status.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusPreparing   Status = "preparing"
	StatusTakingOff   Status = "taking_off"
	StatusInFlight    Status = "in_flight"
	StatusLanding     Status = "landing"
	StatusParked      Status = "parked"
	StatusMaintenance Status = "maintenance"
	StatusEmergency   Status = "emergency"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusIdle, StatusPreparing, StatusTakingOff, StatusInFlight,
		StatusLanding, StatusParked, StatusMaintenance, StatusEmergency,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Airborne reports whether the status denotes active flight.
func (s Status) Airborne() bool {
	return s == StatusTakingOff || s == StatusInFlight || s == StatusLanding || s == StatusEmergency
}

// AutomationLevel describes how much of the flight is piloted by software.
type AutomationLevel string

const (
	AutomationManual     AutomationLevel = "manual"
	AutomationAssisted   AutomationLevel = "assisted"
	AutomationSupervised AutomationLevel = "supervised"
	AutomationAutonomous AutomationLevel = "autonomous"
)

// AuthorizationStatus is the state of a flight authorization.
type AuthorizationStatus string

const (
	AuthPending   AuthorizationStatus = "pending"
	AuthApproved  AuthorizationStatus = "approved"
	AuthRejected  AuthorizationStatus = "rejected"
	AuthExpired   AuthorizationStatus = "expired"
	AuthCancelled AuthorizationStatus = "cancelled"
)

// AuthorizationStatuses lists every authorization status.
func AuthorizationStatuses() []AuthorizationStatus {
	return []AuthorizationStatus{AuthPending, AuthApproved, AuthRejected, AuthExpired, AuthCancelled}
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
