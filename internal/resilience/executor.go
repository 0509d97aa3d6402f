package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned when the breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Config holds executor settings.
type Config struct {
	// Name identifies the guarded dependency.
	Name string

	// Timeout bounds each attempt. Zero means no per-attempt deadline.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retries; DefaultConfig uses 3.
	MaxRetries uint64

	// InitialInterval is the first backoff delay.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay.
	// Default: 5 seconds
	MaxInterval time.Duration

	Breaker BreakerConfig

	// Registry, when set, receives the executor and its outcomes.
	Registry *Registry
}

// DefaultConfig returns defaults for a dependency named name.
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         DefaultBreakerConfig(),
	}
}

// Executor runs operations through a circuit breaker with exponential
// backoff retries.
type Executor struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewExecutor creates an executor and registers it when cfg.Registry is set.
func NewExecutor(cfg Config) *Executor {
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	e := &Executor{
		cfg:     cfg,
		breaker: newBreaker(cfg.Name, cfg.Breaker),
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(e)
	}
	return e
}

// Name returns the guarded dependency's name.
func (e *Executor) Name() string { return e.cfg.Name }

// State returns the breaker state.
func (e *Executor) State() gobreaker.State { return e.breaker.State() }

// Counts returns the breaker counts.
func (e *Executor) Counts() gobreaker.Counts { return e.breaker.Counts() }

// Do runs op until it succeeds, the retries are exhausted, ctx ends, or the
// breaker opens. Errors wrapped with Permanent are not retried.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialInterval
	bo.MaxInterval = e.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.cfg.MaxRetries), ctx)

	attempt := func() error {
		_, err := e.breaker.Execute(func() (struct{}, error) {
			actx := ctx
			if e.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
				defer cancel()
			}
			return struct{}{}, op(actx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		return err
	}

	err := backoff.Retry(attempt, policy)
	if reg := e.cfg.Registry; reg != nil {
		if err != nil {
			reg.RecordFailure(e.cfg.Name, err)
		} else {
			reg.RecordSuccess(e.cfg.Name)
		}
	}
	return err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
