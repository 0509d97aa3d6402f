package control

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/skylane/utm/internal/collision"
	"github.com/skylane/utm/internal/vehicle"
)

const meterName = "github.com/skylane/utm/internal/control"

// Metrics holds the OpenTelemetry instruments recorded by the Center.
type Metrics struct {
	authorizations  metric.Int64Counter
	activeVehicles  metric.Int64UpDownCounter
	positionUpdates metric.Int64Counter
	violations      metric.Int64Counter
	risks           metric.Int64Counter
	outOfBounds     metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	authorizations, err := meter.Int64Counter(
		"utm.authorization.decisions",
		metric.WithDescription("Authorization requests by outcome"),
		metric.WithUnit("{authorization}"),
	)
	if err != nil {
		return nil, err
	}

	activeVehicles, err := meter.Int64UpDownCounter(
		"utm.vehicles.active",
		metric.WithDescription("Number of registered vehicles"),
		metric.WithUnit("{vehicle}"),
	)
	if err != nil {
		return nil, err
	}

	positionUpdates, err := meter.Int64Counter(
		"utm.position.updates",
		metric.WithDescription("Position updates applied"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	violations, err := meter.Int64Counter(
		"utm.rule.violations",
		metric.WithDescription("Rule violations detected on position updates"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, err
	}

	risks, err := meter.Int64Counter(
		"utm.collision.risks",
		metric.WithDescription("Collision risks reported by level"),
		metric.WithUnit("{risk}"),
	)
	if err != nil {
		return nil, err
	}

	outOfBounds, err := meter.Int64Counter(
		"utm.position.out_of_bounds",
		metric.WithDescription("Position updates outside the airspace bounds"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		authorizations:  authorizations,
		activeVehicles:  activeVehicles,
		positionUpdates: positionUpdates,
		violations:      violations,
		risks:           risks,
		outOfBounds:     outOfBounds,
	}, nil
}

func (m *Metrics) recordAuthorization(status vehicle.AuthorizationStatus) {
	if m == nil {
		return
	}
	m.authorizations.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("status", string(status))))
}

func (m *Metrics) recordActive(delta int64) {
	if m == nil {
		return
	}
	m.activeVehicles.Add(context.Background(), delta)
}

func (m *Metrics) recordUpdate(violations int, outOfBounds bool) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.positionUpdates.Add(ctx, 1)
	if violations > 0 {
		m.violations.Add(ctx, int64(violations))
	}
	if outOfBounds {
		m.outOfBounds.Add(ctx, 1)
	}
}

func (m *Metrics) recordRisks(risks []collision.Risk) {
	if m == nil {
		return
	}
	for _, r := range risks {
		m.risks.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("level", r.Level.String())))
	}
}
