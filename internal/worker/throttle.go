package worker

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Throttle is a per-vehicle token bucket limiter for inbound telemetry.
type Throttle struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	allowed atomic.Int64
	dropped atomic.Int64
}

// NewThrottle creates a throttle admitting perSecond messages per vehicle
// with the given burst. A non-positive rate admits everything.
func NewThrottle(perSecond float64, burst int) *Throttle {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a message for vehicleID may be processed now.
func (t *Throttle) Allow(vehicleID string) bool {
	t.mu.Lock()
	l, ok := t.limiters[vehicleID]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[vehicleID] = l
	}
	t.mu.Unlock()

	if l.Allow() {
		t.allowed.Add(1)
		return true
	}
	t.dropped.Add(1)
	return false
}

// Forget drops the limiter for vehicleID.
func (t *Throttle) Forget(vehicleID string) {
	t.mu.Lock()
	delete(t.limiters, vehicleID)
	t.mu.Unlock()
}

// Stats returns the number of allowed and dropped messages.
func (t *Throttle) Stats() (allowed, dropped int64) {
	return t.allowed.Load(), t.dropped.Load()
}
