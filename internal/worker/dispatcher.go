package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skylane/utm/internal/control"
)

// Updater applies telemetry to registered vehicles.
type Updater interface {
	UpdateTelemetry(id string, t control.Telemetry) (*control.UpdateResult, error)
}

// BatchResult summarizes one dispatched batch.
type BatchResult struct {
	StartTime  time.Time
	Duration   time.Duration
	Messages   int
	Vehicles   int
	Applied    int
	Stale      int
	Unknown    int
	Failed     int
	Violations int
	Errors     []MessageError
}

// MessageError records a message that could not be applied.
type MessageError struct {
	VehicleID string
	Error     string
}

// DispatchStats are cumulative dispatcher counters.
type DispatchStats struct {
	Batches    int64
	Messages   int64
	Applied    int64
	Stale      int64
	Unknown    int64
	Failed     int64
	Violations int64
}

// Dispatcher fans a batch of reports out across vehicles. Reports for the
// same vehicle are applied in batch order by a single goroutine; distinct
// vehicles run concurrently up to the configured limit.
type Dispatcher struct {
	updater     Updater
	concurrency int
	logger      zerolog.Logger

	batches, messages, applied, stale, unknown, failed, violations atomic.Int64
}

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	Updater     Updater
	Concurrency int
	Logger      zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	return &Dispatcher{
		updater:     cfg.Updater,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Apply runs the batch and waits for it to finish. It returns early with the
// context error when ctx is cancelled; messages already applied stay
// applied.
func (d *Dispatcher) Apply(ctx context.Context, msgs []PositionMessage) (*BatchResult, error) {
	result := &BatchResult{StartTime: time.Now(), Messages: len(msgs)}

	groups := make(map[string][]PositionMessage)
	var order []string
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, MessageError{VehicleID: m.VehicleID, Error: err.Error()})
			continue
		}
		if _, ok := groups[m.VehicleID]; !ok {
			order = append(order, m.VehicleID)
		}
		groups[m.VehicleID] = append(groups[m.VehicleID], m)
	}
	result.Vehicles = len(order)

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)

	for _, id := range order {
		reports := groups[id]
		eg.Go(func() error {
			for _, m := range reports {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := d.updater.UpdateTelemetry(m.VehicleID, m.Telemetry())

				mu.Lock()
				switch {
				case err != nil:
					result.Failed++
					result.Errors = append(result.Errors, MessageError{VehicleID: m.VehicleID, Error: err.Error()})
				case res == nil:
					result.Unknown++
				case res.Stale:
					result.Stale++
				default:
					result.Applied++
					result.Violations += len(res.Violations)
				}
				mu.Unlock()
			}
			return nil
		})
	}

	err := eg.Wait()
	result.Duration = time.Since(result.StartTime)
	d.record(result)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		d.logger.Warn().Err(err).Int("applied", result.Applied).Msg("batch interrupted")
		return result, err
	}

	d.logger.Debug().
		Int("messages", result.Messages).
		Int("vehicles", result.Vehicles).
		Int("applied", result.Applied).
		Int("stale", result.Stale).
		Int("unknown", result.Unknown).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("batch dispatched")
	return result, err
}

func (d *Dispatcher) record(r *BatchResult) {
	d.batches.Add(1)
	d.messages.Add(int64(r.Messages))
	d.applied.Add(int64(r.Applied))
	d.stale.Add(int64(r.Stale))
	d.unknown.Add(int64(r.Unknown))
	d.failed.Add(int64(r.Failed))
	d.violations.Add(int64(r.Violations))
}

// Stats returns the cumulative counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Batches:    d.batches.Load(),
		Messages:   d.messages.Load(),
		Applied:    d.applied.Load(),
		Stale:      d.stale.Load(),
		Unknown:    d.unknown.Load(),
		Failed:     d.failed.Load(),
		Violations: d.violations.Load(),
	}
}
