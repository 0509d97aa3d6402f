// Package rules implements the traffic compliance rules and the ordered
// engine that evaluates them.
package rules

import (
	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/vehicle"
)

// Type identifies a rule kind.
type Type string

const (
	TypeSpeedLimit Type = "speed_limit"
	TypeEntryExit  Type = "entry_exit"
)

// Rule is a compliance rule. The set of implementations is closed:
// *SpeedLimitRule and *EntryExitRule.
type Rule interface {
	// Info returns the rule's common attributes.
	Info() Info
	// Violated reports whether v at p breaks the rule.
	Violated(v *vehicle.Vehicle, p geo.Position) bool
	// InWarningZone reports whether v at p is approaching the rule's limit
	// without breaking it.
	InWarningZone(v *vehicle.Vehicle, p geo.Position) bool
	sealed()
}

// Info carries the attributes every rule shares. A non-nil Zone scopes the
// rule to positions inside that zone.
type Info struct {
	ID       string
	Name     string
	Type     Type
	Priority int
	Active   bool
	Zone     *airspace.RestrictedZone
}

// AppliesAt reports whether the rule is active and in scope at p.
func (i Info) AppliesAt(p geo.Position) bool {
	if !i.Active {
		return false
	}
	return i.Zone == nil || i.Zone.Contains(p)
}

// SpeedLimitRule bounds a vehicle's speed. The minimum applies only while
// the vehicle is in flight.
type SpeedLimitRule struct {
	Base             Info
	MaxSpeed         float64
	MinSpeed         float64
	WarningTolerance float64
}

// NewSpeedLimitRule creates an active speed limit rule.
func NewSpeedLimitRule(id, name string, priority int, maxSpeed, minSpeed, tolerance float64) *SpeedLimitRule {
	return &SpeedLimitRule{
		Base:             Info{ID: id, Name: name, Type: TypeSpeedLimit, Priority: priority, Active: true},
		MaxSpeed:         maxSpeed,
		MinSpeed:         minSpeed,
		WarningTolerance: tolerance,
	}
}

func (*SpeedLimitRule) sealed() {}

// Info returns the rule attributes.
func (r *SpeedLimitRule) Info() Info {
	info := r.Base
	info.Type = TypeSpeedLimit
	return info
}

// Violated reports speed above the maximum, or below the minimum during
// cruise. Take-off and landing are governed by EntryExitRule and never
// trip the minimum.
func (r *SpeedLimitRule) Violated(v *vehicle.Vehicle, _ geo.Position) bool {
	speed := v.Velocity()
	if r.MaxSpeed > 0 && speed > r.MaxSpeed {
		return true
	}
	return r.MinSpeed > 0 && speed < r.MinSpeed && InFlight(v.Status())
}

// InWarningZone reports speed within [MaxSpeed-WarningTolerance, MaxSpeed]
// for a vehicle not already in violation.
func (r *SpeedLimitRule) InWarningZone(v *vehicle.Vehicle, p geo.Position) bool {
	if r.MaxSpeed <= 0 || r.WarningTolerance <= 0 || r.Violated(v, p) {
		return false
	}
	speed := v.Velocity()
	return speed >= r.MaxSpeed-r.WarningTolerance && speed <= r.MaxSpeed
}

// EntryExitRule caps speed while a vehicle enters or leaves traffic and
// defines the altitude offsets used for the transitions.
type EntryExitRule struct {
	Base                Info
	EntryAltitudeOffset float64
	ExitAltitudeOffset  float64
	EntrySpeedLimit     float64
	ExitSpeedLimit      float64
}

// NewEntryExitRule creates an active entry/exit rule.
func NewEntryExitRule(id, name string, priority int, entryOffset, exitOffset, entrySpeed, exitSpeed float64) *EntryExitRule {
	return &EntryExitRule{
		Base:                Info{ID: id, Name: name, Type: TypeEntryExit, Priority: priority, Active: true},
		EntryAltitudeOffset: entryOffset,
		ExitAltitudeOffset:  exitOffset,
		EntrySpeedLimit:     entrySpeed,
		ExitSpeedLimit:      exitSpeed,
	}
}

func (*EntryExitRule) sealed() {}

// Info returns the rule attributes.
func (r *EntryExitRule) Info() Info {
	info := r.Base
	info.Type = TypeEntryExit
	return info
}

// Entering reports whether the status is part of the entry phase.
func Entering(s vehicle.Status) bool {
	return s == vehicle.StatusPreparing || s == vehicle.StatusTakingOff
}

// InFlight reports whether the status is cruise flight, the phase between
// entry and exit.
func InFlight(s vehicle.Status) bool {
	return s == vehicle.StatusInFlight
}

// Exiting reports whether the status is part of the exit phase.
func Exiting(s vehicle.Status) bool {
	return s == vehicle.StatusLanding
}

// Violated reports speed above the entry cap while entering, or above the
// exit cap while landing.
func (r *EntryExitRule) Violated(v *vehicle.Vehicle, _ geo.Position) bool {
	speed := v.Velocity()
	switch {
	case Entering(v.Status()):
		return r.EntrySpeedLimit > 0 && speed > r.EntrySpeedLimit
	case Exiting(v.Status()):
		return r.ExitSpeedLimit > 0 && speed > r.ExitSpeedLimit
	}
	return false
}

// InWarningZone is always false; entry and exit caps have no warning band.
func (r *EntryExitRule) InWarningZone(*vehicle.Vehicle, geo.Position) bool {
	return false
}

// EntryAltitude converts a traffic altitude into the altitude a vehicle
// should hold while merging in.
func (r *EntryExitRule) EntryAltitude(trafficAlt float64) float64 {
	return trafficAlt + r.EntryAltitudeOffset
}

// ExitAltitude converts a traffic altitude into the altitude a vehicle
// should descend to before landing.
func (r *EntryExitRule) ExitAltitude(trafficAlt float64) float64 {
	return trafficAlt - r.ExitAltitudeOffset
}

// Defaults returns the rule set a control center starts with.
func Defaults() []Rule {
	return []Rule{
		NewSpeedLimitRule("speed-global", "Global speed limit", 100, 50, 0, 5),
		NewEntryExitRule("entry-exit", "Entry and exit procedure", 90, 10, 10, 10, 8),
	}
}
