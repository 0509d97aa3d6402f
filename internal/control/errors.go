package control

import (
	"errors"
	"strings"
)

// Error classes. Every error returned by the Center matches exactly one of
// these with errors.Is.
var (
	// ErrValidation indicates a missing or malformed argument.
	ErrValidation = errors.New("validation error")
	// ErrState indicates the operation is not allowed in the current state.
	ErrState = errors.New("state error")
)

// Specific failure causes.
var (
	ErrMissingPosition    = errors.New("position is required")
	ErrInvalidPosition    = errors.New("position must be finite with lat in [-90, 90] and lon in [-180, 180]")
	ErrInvalidTelemetry   = errors.New("telemetry values must be finite")
	ErrNegativeRadius     = errors.New("radius must not be negative")
	ErrNotAuthorized      = errors.New("no valid authorization")
	ErrAlreadyRegistered  = errors.New("vehicle already registered")
	ErrVehicleNotFound    = errors.New("vehicle not registered")
	ErrCapacityReached    = errors.New("active vehicle capacity reached")
	ErrNoAirspace         = errors.New("no airspace loaded")
	ErrCenterNotOperating = errors.New("control center not operational")
)

// Kind separates argument failures from state failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error provides detailed information about a failed Center operation.
type Error struct {
	Op        string // Operation that failed, e.g. "register"
	Kind      Kind   // Validation or state
	VehicleID string // Vehicle involved, if any
	Err       error  // Underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("control: ")
	b.WriteString(e.Op)
	if e.VehicleID != "" {
		b.WriteString(" ")
		b.WriteString(e.VehicleID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the cause and the error class.
func (e *Error) Unwrap() []error {
	class := ErrState
	if e.Kind == KindValidation {
		class = ErrValidation
	}
	if e.Err == nil {
		return []error{class}
	}
	return []error{e.Err, class}
}

func validationError(op, vehicleID string, err error) error {
	return &Error{Op: op, Kind: KindValidation, VehicleID: vehicleID, Err: err}
}

func stateError(op, vehicleID string, err error) error {
	return &Error{Op: op, Kind: KindState, VehicleID: vehicleID, Err: err}
}
