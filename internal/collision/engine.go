package collision

import (
	"math"
	"slices"
	"time"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/vehicle"
)

// Config tunes the risk engine. Zero values take the package defaults.
type Config struct {
	MinHorizontal     float64
	MinVertical       float64
	CheckRadius       float64
	PredictionHorizon time.Duration
	DefaultMaxSpeed   float64

	// LayerAware enables altitude-layer separation when scoring.
	LayerAware bool

	// Clock stamps detected risks (default: time.Now).
	Clock vehicle.Clock
}

// Engine scores collision risk. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	minH       float64
	minV       float64
	radius     float64
	horizon    time.Duration
	maxSpeed   float64
	layerAware bool
	now        vehicle.Clock
}

// NewEngine creates an engine with cfg, filling in defaults.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		minH:       cfg.MinHorizontal,
		minV:       cfg.MinVertical,
		radius:     cfg.CheckRadius,
		horizon:    cfg.PredictionHorizon,
		maxSpeed:   cfg.DefaultMaxSpeed,
		layerAware: cfg.LayerAware,
		now:        cfg.Clock,
	}
	if e.minH <= 0 {
		e.minH = MinHorizontalSeparation
	}
	if e.minV <= 0 {
		e.minV = MinVerticalSeparation
	}
	if e.radius <= 0 {
		e.radius = CheckRadius
	}
	if e.horizon <= 0 {
		e.horizon = PredictionHorizon
	}
	if e.maxSpeed <= 0 {
		e.maxSpeed = DefaultMaxSpeed
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// CheckRadius returns the neighbor scan radius in meters.
func (e *Engine) CheckRadius() float64 { return e.radius }

// Between scores the risk between a and b. It returns nil when either
// vehicle has no position or the pair is adequately separated.
func (e *Engine) Between(a, b *vehicle.Vehicle) (*Risk, error) {
	if a == nil || b == nil {
		return nil, vehicle.ErrNilVehicle
	}
	pa, okA := a.Position()
	pb, okB := b.Position()
	if !okA || !okB {
		return nil, nil
	}

	horizontal := pa.HorizontalDistance(pb)
	vertical := pa.VerticalDistance(pb)
	distance := math.Sqrt(horizontal*horizontal + vertical*vertical)

	factor, separated := e.layerFactor(pa, pb, horizontal, vertical)
	if separated {
		return nil, nil
	}

	hOK := horizontal >= e.minH
	vOK := vertical >= e.minV
	approach := e.approachFactor(a, b, pa, pb, distance)
	if hOK && vOK && approach < ApproachThreshold {
		return nil, nil
	}

	var hViolation, vViolation float64
	if !hOK {
		hViolation = (e.minH - horizontal) / e.minH
	}
	if !vOK {
		vViolation = (e.minV - vertical) / e.minV
	}

	rel := relativeSpeed(a, b)
	maxSpeed := math.Max(a.EffectiveMaxSpeed(e.maxSpeed), b.EffectiveMaxSpeed(e.maxSpeed))
	speedFraction := math.Min(rel/maxSpeed, 1)

	score := factor * (0.4*(1-math.Min(distance/e.radius, 1)) +
		0.3*hViolation +
		0.2*vViolation +
		0.1*speedFraction +
		0.3*approach)
	score = math.Min(math.Max(score, 0), 1)

	level := classify(score, !hOK, !vOK)
	return &Risk{
		VehicleA:           a.ID(),
		VehicleB:           b.ID(),
		Score:              score,
		Level:              level,
		Distance:           distance,
		HorizontalDistance: horizontal,
		VerticalDistance:   vertical,
		TimeToCollision:    timeToCollision(distance, rel, e.minH),
		Action:             ActionFor(level),
		DetectedAt:         e.now(),
	}, nil
}

// RisksFor scores v against every candidate within the check radius,
// skipping v itself. Results are ordered by score, highest first, then by
// the other vehicle's id.
func (e *Engine) RisksFor(v *vehicle.Vehicle, candidates []*vehicle.Vehicle) ([]Risk, error) {
	if v == nil {
		return nil, vehicle.ErrNilVehicle
	}
	pv, ok := v.Position()
	if !ok {
		return nil, nil
	}

	var out []Risk
	for _, c := range candidates {
		if c == nil || c.ID() == v.ID() {
			continue
		}
		pc, ok := c.Position()
		if !ok || pv.HorizontalDistance(pc) > e.radius {
			continue
		}
		r, err := e.Between(v, c)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, *r)
		}
	}
	SortRisks(out)
	return out, nil
}

// SortRisks orders risks by score descending, then by pair key.
func SortRisks(risks []Risk) {
	slices.SortStableFunc(risks, func(a, b Risk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Key() < b.Key():
			return -1
		case a.Key() > b.Key():
			return 1
		}
		return 0
	})
}

// Dedupe keeps the first risk seen for each unordered pair.
func Dedupe(risks []Risk) []Risk {
	seen := make(map[string]struct{}, len(risks))
	out := risks[:0:0]
	for _, r := range risks {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// layerFactor returns the scaling applied to a pair in different altitude
// layers, and whether the layers alone separate them. Vehicles outside
// every layer are scored as if layering were off.
func (e *Engine) layerFactor(pa, pb geo.Position, horizontal, vertical float64) (float64, bool) {
	if !e.layerAware {
		return 1, false
	}
	la, okA := airspace.LayerFromAltitude(pa.Alt)
	lb, okB := airspace.LayerFromAltitude(pb.Alt)
	if !okA || !okB || la == lb {
		return 1, false
	}
	switch {
	case vertical >= 100:
		return 0.1, true
	case vertical >= 60 && horizontal > 2*e.minH:
		return 0.3, true
	case vertical >= 60:
		return 0.3, false
	default:
		return 0.5, false
	}
}

// approachFactor is the fraction by which the 3D distance shrinks over the
// prediction horizon, clamped to [0, 1].
func (e *Engine) approachFactor(a, b *vehicle.Vehicle, pa, pb geo.Position, current float64) float64 {
	if current <= 0 {
		return 0
	}
	fa := pa.Project(a.Heading(), a.Velocity(), e.horizon)
	fb := pb.Project(b.Heading(), b.Velocity(), e.horizon)
	future := fa.Distance3D(fb)
	return math.Min(math.Max((current-future)/current, 0), 1)
}

func relativeSpeed(a, b *vehicle.Vehicle) float64 {
	ax, ay := velocityComponents(a)
	bx, by := velocityComponents(b)
	return math.Hypot(ax-bx, ay-by)
}

func velocityComponents(v *vehicle.Vehicle) (east, north float64) {
	rad := v.Heading() * math.Pi / 180
	return v.Velocity() * math.Sin(rad), v.Velocity() * math.Cos(rad)
}

func timeToCollision(distance, rel, minH float64) float64 {
	if rel == 0 {
		return math.Inf(1)
	}
	return math.Max(0, (distance-minH)/rel)
}

func classify(score float64, hViolated, vViolated bool) Level {
	switch {
	case score >= 0.8 || (hViolated && vViolated):
		return LevelCritical
	case score >= 0.5 || hViolated || vViolated:
		return LevelHigh
	case score >= 0.3:
		return LevelMedium
	default:
		return LevelLow
	}
}
