// Package models provides request and response models for the traffic
// control HTTP API.
package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/skylane/utm/internal/geo"
)

// Position is a point in airspace as exchanged over the API.
type Position struct {
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Alt       float64    `json:"alt"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}

// NewPosition converts a geo.Position.
func NewPosition(p geo.Position) Position {
	out := Position{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt}
	if !p.Timestamp.IsZero() {
		ts := Timestamp(p.Timestamp)
		out.Timestamp = &ts
	}
	return out
}

// Geo converts back, stamping now when the request carried no timestamp.
func (p Position) Geo(now time.Time) geo.Position {
	ts := now
	if p.Timestamp != nil {
		ts = p.Timestamp.Time()
	}
	return geo.NewPosition(p.Lat, p.Lon, p.Alt, ts)
}

// Validate returns field errors for out-of-range coordinates.
func (p Position) Validate(field string) []FieldError {
	var errs []FieldError
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		errs = append(errs, FieldError{Field: field + ".lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"})
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		errs = append(errs, FieldError{Field: field + ".lon", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"})
	}
	if math.IsNaN(p.Alt) || math.IsInf(p.Alt, 0) {
		errs = append(errs, FieldError{Field: field + ".alt", Message: "must be a finite number", Code: "INVALID"})
	}
	return errs
}

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Seconds is a duration in seconds that encodes +Inf and NaN as null.
type Seconds float64

// MarshalJSON implements json.Marshaler for Seconds.
func (s Seconds) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON implements json.Unmarshaler for Seconds. null decodes as +Inf.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Seconds(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*s = Seconds(f)
	return nil
}

// Timestamp is a helper type for time.Time with custom JSON formatting.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler for Timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(time.RFC3339Nano) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// timestampPtr returns nil for the zero time.
func timestampPtr(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	ts := Timestamp(t)
	return &ts
}
