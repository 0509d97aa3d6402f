// Package control implements the traffic control center: the admission
// gate, the vehicle registry and the per-update pipeline tying the spatial
// index, rule engine, flow assignment and collision engine together.
package control

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/collision"
	"github.com/skylane/utm/internal/flow"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/rules"
	"github.com/skylane/utm/internal/spatial"
	"github.com/skylane/utm/internal/station"
	"github.com/skylane/utm/internal/vehicle"
)

const (
	// DefaultMaxActiveVehicles is the admission ceiling for registered vehicles.
	DefaultMaxActiveVehicles = 100
	// DefaultAuthorizationValidity is how long an approval stays valid.
	DefaultAuthorizationValidity = time.Hour
	// DefaultSegmentThreshold is the distance within which a vehicle is
	// assigned to a route segment, in meters.
	DefaultSegmentThreshold = 100.0
	// DefaultCenterID names a center when none is configured.
	DefaultCenterID = "utm-center"
)

// Config holds configuration for the control center.
type Config struct {
	// ID identifies the center in snapshots (default: "utm-center").
	ID string

	// MaxActiveVehicles is the admission ceiling (default: 100).
	MaxActiveVehicles int

	// AuthorizationValidity is the approval window (default: 1 hour).
	// A negative value approves without a deadline.
	AuthorizationValidity time.Duration

	// SegmentThreshold is the route segment assignment distance in meters (default: 100).
	SegmentThreshold float64

	// Rules seeds the rule engine (default: rules.Defaults()).
	Rules []rules.Rule

	// GroundStations seeds the connectivity tracker.
	GroundStations []station.GroundStation

	// Collision tunes the risk engine. LayerAware is forced on once an
	// airspace is loaded.
	Collision collision.Config

	// Logger for center operations.
	Logger zerolog.Logger

	// Metrics records center activity. Nil disables recording.
	Metrics *Metrics

	// Clock returns the current time (default: time.Now).
	Clock vehicle.Clock
}

// Center coordinates all traffic in one airspace. It is safe for concurrent
// use. Updates to different vehicles run in parallel; updates to the same
// vehicle are serialized.
type Center struct {
	id           string
	maxActive    int
	validity     time.Duration
	segThreshold float64
	logger       zerolog.Logger
	metrics      *Metrics
	now          vehicle.Clock
	collisionCfg collision.Config

	operational atomic.Bool
	rules       *rules.Engine
	stations    atomic.Pointer[station.Tracker]
	space       atomic.Pointer[airspaceState]

	// Lock order: regMu, then entry.mu, then indexMu.
	regMu    sync.RWMutex
	registry map[string]*entry

	indexMu sync.RWMutex
	index   *spatial.Tree[*entry]

	authMu sync.RWMutex
	auths  map[string]*vehicle.Authorization
}

type airspaceState struct {
	model *airspace.Model
	risk  *collision.Engine
	flow  *flow.Assigner
}

// entry is one registered vehicle. cur always holds an immutable published
// copy; writers build a new copy and swap it in while holding indexMu so the
// registry and the index never disagree.
type entry struct {
	id      string
	mu      sync.Mutex
	removed bool
	cur     atomic.Pointer[vehicle.Vehicle]
}

// NewCenter creates an operational center with no airspace loaded.
func NewCenter(cfg Config) (*Center, error) {
	id := cfg.ID
	if id == "" {
		id = DefaultCenterID
	}

	maxActive := cfg.MaxActiveVehicles
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveVehicles
	}

	validity := cfg.AuthorizationValidity
	if validity == 0 {
		validity = DefaultAuthorizationValidity
	}

	segThreshold := cfg.SegmentThreshold
	if segThreshold <= 0 {
		segThreshold = DefaultSegmentThreshold
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	seed := cfg.Rules
	if seed == nil {
		seed = rules.Defaults()
	}
	engine, err := rules.NewEngine(seed...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}

	tracker, err := station.NewTracker(cfg.GroundStations...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ground station tracker: %w", err)
	}

	collisionCfg := cfg.Collision
	if collisionCfg.Clock == nil {
		collisionCfg.Clock = now
	}

	c := &Center{
		id:           id,
		maxActive:    maxActive,
		validity:     validity,
		segThreshold: segThreshold,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          now,
		collisionCfg: collisionCfg,
		rules:        engine,
		registry:     make(map[string]*entry),
		auths:        make(map[string]*vehicle.Authorization),
	}
	c.operational.Store(true)
	c.stations.Store(tracker)
	return c, nil
}

// ID returns the center identifier.
func (c *Center) ID() string { return c.id }

// MaxActiveVehicles returns the admission ceiling.
func (c *Center) MaxActiveVehicles() int { return c.maxActive }

// Rules returns the rule engine so callers can add or remove rules.
func (c *Center) Rules() *rules.Engine { return c.rules }

// IsOperational reports whether the center accepts new authorizations.
func (c *Center) IsOperational() bool { return c.operational.Load() }

// SetOperational opens or closes the center for new authorizations.
func (c *Center) SetOperational(operational bool) {
	c.operational.Store(operational)
	c.logger.Info().Str("center_id", c.id).Bool("operational", operational).Msg("Operational state changed")
}

// Airspace returns the loaded model, or nil.
func (c *Center) Airspace() *airspace.Model {
	if s := c.space.Load(); s != nil {
		return s.model
	}
	return nil
}

// LoadAirspace installs m and rebuilds the spatial index over its bounds,
// re-indexing every registered vehicle.
func (c *Center) LoadAirspace(m *airspace.Model) error {
	if m == nil {
		return validationError("load_airspace", "", errors.New("airspace is required"))
	}
	tree, err := spatial.New[*entry](m.Bounds())
	if err != nil {
		return validationError("load_airspace", "", err)
	}

	riskCfg := c.collisionCfg
	riskCfg.LayerAware = true
	state := &airspaceState{
		model: m,
		risk:  collision.NewEngine(riskCfg),
		flow:  flow.NewAssigner(m),
	}

	c.regMu.RLock()
	defer c.regMu.RUnlock()
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	for id, e := range c.registry {
		v := e.cur.Load()
		p, _ := v.Position()
		if err := tree.Insert(id, clampTo(m.Bounds(), p), e); err != nil {
			return stateError("load_airspace", id, err)
		}
	}
	c.index = tree
	c.space.Store(state)

	obstacles, zones, routes, segments := m.Counts()
	c.logger.Info().
		Str("airspace_id", m.ID()).
		Int("obstacles", obstacles).
		Int("restricted_zones", zones).
		Int("routes", routes).
		Int("segments", segments).
		Int("reindexed", len(c.registry)).
		Msg("Airspace loaded")

	for z := range m.RestrictedZones() {
		if z.Degenerate() {
			c.logger.Warn().
				Str("zone_id", z.ID).
				Int("vertices", len(z.Boundary)).
				Msg("Restricted zone has fewer than three vertices and restricts nothing")
		}
	}
	return nil
}

// RequestAuthorization evaluates whether v may fly from departure to
// destination. Business rejections are reported through the returned
// record, never as an error; the error is reserved for a nil vehicle.
func (c *Center) RequestAuthorization(v *vehicle.Vehicle, departure, destination geo.Position) (*vehicle.Authorization, error) {
	if v == nil {
		return nil, validationError("request_authorization", "", vehicle.ErrNilVehicle)
	}

	now := c.now()
	auth := vehicle.NewAuthorization(v.ID(), departure, destination, now)

	if reason := c.admissionCheck(departure, destination); reason != "" {
		auth.Reject(reason)
		c.logger.Warn().
			Str("vehicle_id", v.ID()).
			Str("authorization_id", auth.ID).
			Str("reason", reason).
			Msg("Authorization rejected")
	} else {
		validity := c.validity
		if validity < 0 {
			validity = 0
		}
		auth.Approve(now, validity)
		if s := c.space.Load(); s != nil {
			if r, ok := s.model.FindNearestRoute(departure, c.segThreshold); ok {
				auth.RouteID = r.ID
			}
		}
		c.logger.Info().
			Str("vehicle_id", v.ID()).
			Str("authorization_id", auth.ID).
			Time("valid_until", auth.ValidUntil).
			Msg("Authorization approved")
	}

	c.authMu.Lock()
	c.auths[v.ID()] = auth
	c.authMu.Unlock()

	c.metrics.recordAuthorization(auth.Status)
	out := *auth
	return &out, nil
}

func (c *Center) admissionCheck(departure, destination geo.Position) string {
	if !c.IsOperational() {
		return ErrCenterNotOperating.Error()
	}
	s := c.space.Load()
	if s == nil {
		return ErrNoAirspace.Error()
	}
	if active := c.ActiveCount(); active >= c.maxActive {
		return fmt.Sprintf("%v: %d of %d vehicles active", ErrCapacityReached, active, c.maxActive)
	}
	if ok, reason := s.model.CheckPosition(departure); !ok {
		return "departure unsafe: " + reason
	}
	if ok, reason := s.model.CheckPosition(destination); !ok {
		return "destination unsafe: " + reason
	}
	return ""
}

// RegisterVehicle admits v into active traffic. It requires a valid
// authorization for v's id. The center keeps its own copy of v; a vehicle
// without a position is placed at its authorized departure.
func (c *Center) RegisterVehicle(v *vehicle.Vehicle) error {
	const op = "register"
	if v == nil {
		return validationError(op, "", vehicle.ErrNilVehicle)
	}
	id := v.ID()

	c.authMu.RLock()
	auth := c.auths[id]
	valid := auth.IsValid(c.now())
	var departure geo.Position
	if auth != nil {
		departure = auth.Departure
	}
	c.authMu.RUnlock()
	if !valid {
		return stateError(op, id, ErrNotAuthorized)
	}

	s := c.space.Load()
	if s == nil {
		return stateError(op, id, ErrNoAirspace)
	}

	next := v.Clone()
	if p, ok := next.Position(); !ok {
		next.SetPosition(departure)
	} else if !p.Valid() {
		return validationError(op, id, ErrInvalidPosition)
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()

	if _, exists := c.registry[id]; exists {
		return stateError(op, id, ErrAlreadyRegistered)
	}
	if len(c.registry) >= c.maxActive {
		return stateError(op, id, ErrCapacityReached)
	}

	next.SetSegmentID("")
	if _, _, err := s.flow.UpdateSegment(next, c.segThreshold); err != nil {
		return validationError(op, id, err)
	}
	pos, _ := next.Position()

	e := &entry{id: id}
	c.indexMu.Lock()
	if err := c.index.Insert(id, clampTo(c.index.Bounds(), pos), e); err != nil {
		c.indexMu.Unlock()
		s.flow.Release(id, next.SegmentID())
		return stateError(op, id, err)
	}
	e.cur.Store(next)
	c.registry[id] = e
	c.indexMu.Unlock()

	stationID, connected := c.stations.Load().Connect(id, pos)
	c.metrics.recordActive(1)

	c.logger.Info().
		Str("vehicle_id", id).
		Str("segment_id", next.SegmentID()).
		Str("ground_station", stationID).
		Bool("connected", connected).
		Int("active", len(c.registry)).
		Msg("Vehicle registered")
	return nil
}

// UnregisterVehicle removes a vehicle from the registry, the spatial index,
// its route segment, its ground station and the authorization table. It
// reports whether the vehicle was registered.
func (c *Center) UnregisterVehicle(id string) bool {
	c.regMu.Lock()
	e, ok := c.registry[id]
	if !ok {
		c.regMu.Unlock()
		return false
	}
	e.mu.Lock()
	e.removed = true
	c.indexMu.Lock()
	c.index.Remove(id)
	delete(c.registry, id)
	c.indexMu.Unlock()
	last := e.cur.Load()
	e.mu.Unlock()
	c.regMu.Unlock()

	if s := c.space.Load(); s != nil {
		s.flow.Release(id, last.SegmentID())
	}
	c.stations.Load().Disconnect(id)

	c.authMu.Lock()
	delete(c.auths, id)
	c.authMu.Unlock()

	c.metrics.recordActive(-1)
	c.logger.Info().Str("vehicle_id", id).Msg("Vehicle unregistered")
	return true
}

// Telemetry is one vehicle report. Nil fields are left unchanged.
type Telemetry struct {
	Position geo.Position
	Velocity *float64
	Heading  *float64
	Fuel     *float64
	Status   *vehicle.Status
}

func (t Telemetry) validate() error {
	if !t.Position.Valid() {
		return ErrInvalidPosition
	}
	for _, f := range []*float64{t.Velocity, t.Heading, t.Fuel} {
		if f != nil && !geo.Finite(*f) {
			return ErrInvalidTelemetry
		}
	}
	return nil
}

// UpdateResult describes the outcome of applying one update.
type UpdateResult struct {
	// Applied is false for stale updates that were ignored.
	Applied bool
	// Stale is set when the update's timestamp precedes the stored one.
	Stale bool
	// OutOfBounds is set when the position lies outside the airspace and
	// was clamped onto its edge for indexing.
	OutOfBounds bool
	Violations  []rules.Info
	Warnings    []rules.Info
	SegmentID   string
	// Compliant reports whether the vehicle flies its segment profile.
	Compliant     bool
	GroundStation string
}

// UpdatePosition moves a registered vehicle. Unknown ids are ignored and
// return a nil result.
func (c *Center) UpdatePosition(id string, p geo.Position) (*UpdateResult, error) {
	return c.UpdateTelemetry(id, Telemetry{Position: p})
}

// UpdateTelemetry applies a report to a registered vehicle as one atomic
// unit: position write, index update, segment assignment and rule
// evaluation. Unknown ids are ignored and return a nil result. An update
// whose position timestamp precedes the stored one is ignored and reported
// as stale.
func (c *Center) UpdateTelemetry(id string, t Telemetry) (*UpdateResult, error) {
	if err := t.validate(); err != nil {
		return nil, validationError("update_position", id, err)
	}

	c.regMu.RLock()
	e, ok := c.registry[id]
	c.regMu.RUnlock()
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, nil
	}

	cur := e.cur.Load()
	if prev, ok := cur.Position(); ok && isStale(prev.Timestamp, t.Position.Timestamp) {
		c.logger.Debug().
			Str("vehicle_id", id).
			Time("stored", prev.Timestamp).
			Time("received", t.Position.Timestamp).
			Msg("Ignoring stale update")
		return &UpdateResult{Stale: true, SegmentID: cur.SegmentID(), Compliant: true}, nil
	}

	next := cur.Clone()
	next.SetPosition(t.Position)
	if t.Velocity != nil {
		next.SetVelocity(*t.Velocity)
	}
	if t.Heading != nil {
		next.SetHeading(*t.Heading)
	}
	if t.Fuel != nil {
		next.SetFuel(*t.Fuel)
	}
	if t.Status != nil {
		next.SetStatus(*t.Status)
	}
	pos, _ := next.Position()

	res := &UpdateResult{Applied: true, Compliant: true}
	s := c.space.Load()
	if s != nil {
		if _, _, err := s.flow.UpdateSegment(next, c.segThreshold); err != nil {
			return nil, validationError("update_position", id, err)
		}
		compliant, err := s.flow.CheckCompliance(next)
		if err != nil {
			return nil, validationError("update_position", id, err)
		}
		res.Compliant = compliant
	}
	res.SegmentID = next.SegmentID()

	c.indexMu.Lock()
	bounds := c.index.Bounds()
	if !bounds.Contains(pos.Lat, pos.Lon) {
		res.OutOfBounds = true
	}
	if err := c.index.Update(id, clampTo(bounds, pos), e); err != nil {
		c.indexMu.Unlock()
		return nil, stateError("update_position", id, err)
	}
	e.cur.Store(next)
	c.indexMu.Unlock()

	result, err := c.rules.Evaluate(next, pos)
	if err != nil {
		return nil, validationError("update_position", id, err)
	}
	res.Violations = result.Violations
	res.Warnings = result.Warnings

	if sid, ok := c.stations.Load().Connect(id, pos); ok {
		res.GroundStation = sid
	}

	if res.OutOfBounds {
		c.logger.Warn().
			Str("vehicle_id", id).
			Float64("lat", pos.Lat).
			Float64("lon", pos.Lon).
			Msg("Vehicle outside airspace bounds, indexed at nearest edge")
	}
	for _, v := range res.Violations {
		c.logger.Warn().
			Str("vehicle_id", id).
			Str("rule_id", v.ID).
			Str("rule_type", string(v.Type)).
			Float64("velocity", next.Velocity()).
			Msg("Rule violation")
	}
	c.logger.Debug().
		Str("vehicle_id", id).
		Str("segment_id", res.SegmentID).
		Bool("compliant", res.Compliant).
		Int("warnings", len(res.Warnings)).
		Msg("Position updated")

	c.metrics.recordUpdate(len(res.Violations), res.OutOfBounds)
	return res, nil
}

func isStale(stored, received time.Time) bool {
	return !stored.IsZero() && !received.IsZero() && received.Before(stored)
}

func clampTo(b geo.Bounds, p geo.Position) geo.Position {
	p.Lat, p.Lon = b.Clamp(p.Lat, p.Lon)
	return p
}

// Vehicle returns the current state of a registered vehicle.
func (c *Center) Vehicle(id string) (vehicle.Reader, bool) {
	c.regMu.RLock()
	e, ok := c.registry[id]
	c.regMu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.cur.Load(), true
}

// ActiveCount returns the number of registered vehicles.
func (c *Center) ActiveCount() int {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	return len(c.registry)
}

// Vehicles iterates over registered vehicles in id order.
func (c *Center) Vehicles() iter.Seq[vehicle.Reader] {
	return func(yield func(vehicle.Reader) bool) {
		for _, v := range c.current() {
			if !yield(v) {
				return
			}
		}
	}
}

func (c *Center) current() []*vehicle.Vehicle {
	c.regMu.RLock()
	out := make([]*vehicle.Vehicle, 0, len(c.registry))
	for _, e := range c.registry {
		out = append(out, e.cur.Load())
	}
	c.regMu.RUnlock()
	slices.SortFunc(out, func(a, b *vehicle.Vehicle) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return out
}

// VehiclesInArea returns registered vehicles within radius meters of
// center, ordered by id.
func (c *Center) VehiclesInArea(center geo.Position, radius float64) ([]vehicle.Reader, error) {
	if radius < 0 || !geo.Finite(radius) {
		return nil, validationError("vehicles_in_area", "", ErrNegativeRadius)
	}
	if !center.Valid() {
		return nil, validationError("vehicles_in_area", "", ErrInvalidPosition)
	}
	found := c.neighbors(center, radius)
	out := make([]vehicle.Reader, 0, len(found))
	for _, v := range found {
		out = append(out, v)
	}
	return out, nil
}

// neighbors reads the index and the published vehicle copies under one
// read lock, then filters on the true position. Vehicles outside the bounds
// are indexed at their clamped point, so a center outside the bounds is
// clamped too and the search widened by the distance it moved.
func (c *Center) neighbors(center geo.Position, radius float64) []*vehicle.Vehicle {
	var out []*vehicle.Vehicle
	c.indexMu.RLock()
	if c.index != nil {
		anchor := clampTo(c.index.Bounds(), center)
		reach := radius + center.HorizontalDistance(anchor)
		c.index.Visit(anchor, reach, func(_ string, _ geo.Position, e *entry) bool {
			v := e.cur.Load()
			if p, ok := v.Position(); ok && center.HorizontalDistance(p) <= radius {
				out = append(out, v)
			}
			return true
		})
	}
	c.indexMu.RUnlock()
	slices.SortFunc(out, func(a, b *vehicle.Vehicle) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return out
}

// CollisionRisksFor scores a registered vehicle against its neighbors
// within the check radius.
func (c *Center) CollisionRisksFor(id string) ([]collision.Risk, error) {
	const op = "collision_risks"
	c.regMu.RLock()
	e, ok := c.registry[id]
	c.regMu.RUnlock()
	if !ok {
		return nil, stateError(op, id, ErrVehicleNotFound)
	}
	s := c.space.Load()
	if s == nil {
		return nil, stateError(op, id, ErrNoAirspace)
	}

	v := e.cur.Load()
	risks, err := c.risksFor(s.risk, v)
	if err != nil {
		return nil, validationError(op, id, err)
	}
	c.metrics.recordRisks(risks)
	return risks, nil
}

func (c *Center) risksFor(engine *collision.Engine, v *vehicle.Vehicle) ([]collision.Risk, error) {
	p, ok := v.Position()
	if !ok {
		return nil, nil
	}
	return engine.RisksFor(v, c.neighbors(p, engine.CheckRadius()))
}

// CriticalCollisionRisks returns every critical risk across the registry,
// one per vehicle pair, highest score first.
func (c *Center) CriticalCollisionRisks() []collision.Risk {
	s := c.space.Load()
	if s == nil {
		return nil
	}

	var critical []collision.Risk
	for _, v := range c.current() {
		risks, err := c.risksFor(s.risk, v)
		if err != nil {
			c.logger.Error().Err(err).Str("vehicle_id", v.ID()).Msg("Risk scan failed")
			continue
		}
		for _, r := range risks {
			if r.Level == collision.LevelCritical {
				critical = append(critical, r)
			}
		}
	}
	critical = collision.Dedupe(critical)
	collision.SortRisks(critical)
	if len(critical) > 0 {
		c.logger.Warn().Int("count", len(critical)).Msg("Critical collision risks detected")
	}
	return critical
}
