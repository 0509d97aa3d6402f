package vehicle

import (
	"time"

	"github.com/google/uuid"

	"github.com/skylane/utm/internal/geo"
)

// Authorization is a vehicle's permission to enter active traffic.
type Authorization struct {
	ID              string
	VehicleID       string
	Departure       geo.Position
	Destination     geo.Position
	RouteID         string
	Status          AuthorizationStatus
	RequestedAt     time.Time
	AuthorizedAt    time.Time
	ValidUntil      time.Time
	RejectionReason string
}

// NewAuthorization creates a pending authorization request.
func NewAuthorization(vehicleID string, departure, destination geo.Position, requestedAt time.Time) *Authorization {
	return &Authorization{
		ID:          uuid.NewString(),
		VehicleID:   vehicleID,
		Departure:   departure,
		Destination: destination,
		Status:      AuthPending,
		RequestedAt: requestedAt,
	}
}

// Approve marks a pending request approved. A zero validity window produces
// an authorization with no deadline.
func (a *Authorization) Approve(now time.Time, validity time.Duration) bool {
	if a.Status != AuthPending {
		return false
	}
	a.Status = AuthApproved
	a.AuthorizedAt = now
	if validity != 0 {
		a.ValidUntil = now.Add(validity)
	}
	return true
}

// Reject marks a pending request rejected with reason.
func (a *Authorization) Reject(reason string) bool {
	if a.Status != AuthPending {
		return false
	}
	a.Status = AuthRejected
	a.RejectionReason = reason
	return true
}

// Expire forces an approved authorization into the expired state.
func (a *Authorization) Expire() bool {
	if a.Status != AuthApproved {
		return false
	}
	a.Status = AuthExpired
	return true
}

// Cancel withdraws a pending or approved authorization.
func (a *Authorization) Cancel() bool {
	if a.Status != AuthApproved && a.Status != AuthPending {
		return false
	}
	a.Status = AuthCancelled
	return true
}

// HasDeadline reports whether the authorization expires.
func (a *Authorization) HasDeadline() bool {
	return !a.ValidUntil.IsZero()
}

// IsValid reports whether the authorization is approved and, if it has a
// deadline, now is not past it.
func (a *Authorization) IsValid(now time.Time) bool {
	if a == nil || a.Status != AuthApproved {
		return false
	}
	return !a.HasDeadline() || !now.After(a.ValidUntil)
}

// Lapsed reports whether an approved authorization has passed its deadline.
func (a *Authorization) Lapsed(now time.Time) bool {
	return a.Status == AuthApproved && a.HasDeadline() && now.After(a.ValidUntil)
}
