package resilience_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/resilience"
)

var errFlaky = errors.New("flaky")

func fastConfig(name string) resilience.Config {
	cfg := resilience.DefaultConfig(name)
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	cfg.Timeout = time.Second
	return cfg
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	cfg := fastConfig("store")
	cfg.MaxRetries = 5
	cfg.Breaker.ReadyToTrip = func(gobreaker.Counts) bool { return false }
	exec := resilience.NewExecutor(cfg)

	var attempts atomic.Int32
	err := exec.Do(context.Background(), func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestExecutor_GivesUpAfterMaxRetries(t *testing.T) {
	cfg := fastConfig("store")
	cfg.MaxRetries = 2
	cfg.Breaker.ReadyToTrip = func(gobreaker.Counts) bool { return false }
	exec := resilience.NewExecutor(cfg)

	var attempts atomic.Int32
	err := exec.Do(context.Background(), func(context.Context) error {
		attempts.Add(1)
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestExecutor_PermanentErrorStopsRetries(t *testing.T) {
	exec := resilience.NewExecutor(fastConfig("store"))

	var attempts atomic.Int32
	err := exec.Do(context.Background(), func(context.Context) error {
		attempts.Add(1)
		return resilience.Permanent(errFlaky)
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestExecutor_BreakerOpens(t *testing.T) {
	cfg := fastConfig("broker")
	cfg.MaxRetries = 0
	cfg.Breaker.Timeout = time.Minute
	exec := resilience.NewExecutor(cfg)

	for range 5 {
		_ = exec.Do(context.Background(), func(context.Context) error { return errFlaky })
	}
	assert.Equal(t, gobreaker.StateOpen, exec.State())

	called := false
	err := exec.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.False(t, called)
}

func TestExecutor_AttemptTimeout(t *testing.T) {
	cfg := fastConfig("slow")
	cfg.Timeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	exec := resilience.NewExecutor(cfg)

	err := exec.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastConfig("store")
	cfg.InitialInterval = time.Second
	exec := resilience.NewExecutor(cfg)

	err := exec.Do(ctx, func(context.Context) error { return errFlaky })
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := resilience.NewRegistry()

	cfg := fastConfig("snapshot-store")
	cfg.MaxRetries = 0
	cfg.Registry = reg
	exec := resilience.NewExecutor(cfg)

	other := fastConfig("nats")
	other.Registry = reg
	resilience.NewExecutor(other)

	assert.Equal(t, 2, reg.Len())

	h, ok := reg.Health("snapshot-store")
	require.True(t, ok)
	assert.True(t, h.Healthy())
	assert.Equal(t, "healthy", h.Status())
	assert.Nil(t, h.LastSuccessAt)

	require.NoError(t, exec.Do(context.Background(), func(context.Context) error { return nil }))
	_ = exec.Do(context.Background(), func(context.Context) error { return errFlaky })

	h, _ = reg.Health("snapshot-store")
	require.NotNil(t, h.LastSuccessAt)
	require.NotNil(t, h.LastFailureAt)
	assert.Equal(t, "flaky", h.LastError)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "nats", all[0].Name)
	assert.Equal(t, "snapshot-store", all[1].Name)

	reg.Unregister("nats")
	_, ok = reg.Health("nats")
	assert.False(t, ok)
}
