package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/vehicle"
)

// Message validation errors.
var (
	ErrMissingVehicleID = errors.New("missing vehicle_id")
	ErrInvalidPosition  = errors.New("invalid position")
)

// PositionMessage is the JSON telemetry report carried by the brokers.
type PositionMessage struct {
	VehicleID   string   `json:"vehicle_id"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	Alt         float64  `json:"alt"`
	TimestampMs int64    `json:"timestamp_ms,omitempty"`
	Velocity    *float64 `json:"velocity,omitempty"`
	Heading     *float64 `json:"heading,omitempty"`
	Fuel        *float64 `json:"fuel,omitempty"`
	Status      *string  `json:"status,omitempty"`
}

// Validate checks the message can be applied.
func (m PositionMessage) Validate() error {
	if m.VehicleID == "" {
		return ErrMissingVehicleID
	}
	if !(geo.Position{Lat: m.Lat, Lon: m.Lon, Alt: m.Alt}).Valid() {
		return fmt.Errorf("%w: lat=%f lon=%f", ErrInvalidPosition, m.Lat, m.Lon)
	}
	return nil
}

// Telemetry converts the message into a center update.
func (m PositionMessage) Telemetry() control.Telemetry {
	t := control.Telemetry{
		Position: geo.Position{Lat: m.Lat, Lon: m.Lon, Alt: m.Alt},
		Velocity: m.Velocity,
		Heading:  m.Heading,
		Fuel:     m.Fuel,
	}
	if m.TimestampMs != 0 {
		t.Position.Timestamp = time.UnixMilli(m.TimestampMs).UTC()
	}
	if m.Status != nil {
		s := vehicle.Status(*m.Status)
		t.Status = &s
	}
	return t
}
