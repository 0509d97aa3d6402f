package rules

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/vehicle"
)

// Sentinel errors for rule engine operations.
var (
	// ErrNilRule indicates a nil rule was added.
	ErrNilRule = errors.New("rule is nil")
	// ErrDuplicateRule indicates a rule with the same id is already registered.
	ErrDuplicateRule = errors.New("duplicate rule id")
)

// Engine holds rules ordered by priority, highest first. Rules with equal
// priority keep insertion order. It is safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	rules   []Rule
	enabled bool
}

// Result is the outcome of evaluating every rule once.
type Result struct {
	Violations []Info
	Warnings   []Info
}

// Compliant reports whether no rule was violated.
func (r Result) Compliant() bool {
	return len(r.Violations) == 0
}

// NewEngine creates an enabled engine holding rules.
func NewEngine(rules ...Rule) (*Engine, error) {
	e := &Engine{enabled: true}
	for _, r := range rules {
		if err := e.Add(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Add inserts a rule and re-sorts by priority.
func (e *Engine) Add(r Rule) error {
	if r == nil {
		return ErrNilRule
	}
	id := r.Info().ID
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.Info().ID == id {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, id)
		}
	}
	e.rules = append(e.rules, r)
	slices.SortStableFunc(e.rules, func(a, b Rule) int {
		return b.Info().Priority - a.Info().Priority
	})
	return nil
}

// Remove drops the rule with id and reports whether it existed.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.Info().ID == id {
			e.rules = slices.Delete(e.rules, i, i+1)
			return true
		}
	}
	return false
}

// SetEnabled turns evaluation on or off. A disabled engine reports nothing.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled reports whether the engine evaluates rules.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.rules)
}

// Len returns the number of rules.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// CheckViolations returns every active rule in scope at p that v violates.
func (e *Engine) CheckViolations(v *vehicle.Vehicle, p geo.Position) ([]Rule, error) {
	if v == nil {
		return nil, vehicle.ErrNilVehicle
	}
	return e.filter(p, func(r Rule) bool { return r.Violated(v, p) }), nil
}

// CheckWarnings returns every active rule in scope at p whose limit v is
// approaching. A rule is never reported as both violated and warning.
func (e *Engine) CheckWarnings(v *vehicle.Vehicle, p geo.Position) ([]Rule, error) {
	if v == nil {
		return nil, vehicle.ErrNilVehicle
	}
	return e.filter(p, func(r Rule) bool {
		return !r.Violated(v, p) && r.InWarningZone(v, p)
	}), nil
}

// Evaluate runs both checks in a single pass.
func (e *Engine) Evaluate(v *vehicle.Vehicle, p geo.Position) (Result, error) {
	if v == nil {
		return Result{}, vehicle.ErrNilVehicle
	}
	var res Result
	for _, r := range e.applicable(p) {
		switch {
		case r.Violated(v, p):
			res.Violations = append(res.Violations, r.Info())
		case r.InWarningZone(v, p):
			res.Warnings = append(res.Warnings, r.Info())
		}
	}
	return res, nil
}

func (e *Engine) filter(p geo.Position, keep func(Rule) bool) []Rule {
	var out []Rule
	for _, r := range e.applicable(p) {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) applicable(p geo.Position) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.enabled {
		return nil
	}
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.Info().AppliesAt(p) {
			out = append(out, r)
		}
	}
	return out
}
