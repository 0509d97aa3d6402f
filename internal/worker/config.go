// Package worker schedules work around the control center: batched
// telemetry fan-out, broker ingest, authorization upkeep and snapshot
// archiving.
package worker

import (
	"time"
)

// Config holds settings shared by the worker components.
type Config struct {
	// Concurrency is the number of vehicles updated in parallel by a batch.
	// Default: 8
	Concurrency int

	// ThrottleRate is the sustained per-vehicle ingest rate in messages per
	// second. Zero or negative disables throttling.
	// Default: 10
	ThrottleRate float64

	// ThrottleBurst is the per-vehicle token bucket size.
	// Default: 20
	ThrottleBurst int

	// ArchiveInterval is the period between snapshots.
	// Default: 30 seconds
	ArchiveInterval time.Duration

	// ArchiveRetain is the number of snapshots kept per center. Zero keeps
	// all of them.
	// Default: 20
	ArchiveRetain int

	// ExpiryInterval is the period between authorization expiry sweeps.
	// Default: 1 minute
	ExpiryInterval time.Duration
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     8,
		ThrottleRate:    10,
		ThrottleBurst:   20,
		ArchiveInterval: 30 * time.Second,
		ArchiveRetain:   20,
		ExpiryInterval:  time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.ThrottleBurst <= 0 {
		c.ThrottleBurst = d.ThrottleBurst
	}
	if c.ArchiveInterval <= 0 {
		c.ArchiveInterval = d.ArchiveInterval
	}
	if c.ArchiveRetain < 0 {
		c.ArchiveRetain = 0
	}
	if c.ExpiryInterval <= 0 {
		c.ExpiryInterval = d.ExpiryInterval
	}
	return c
}
