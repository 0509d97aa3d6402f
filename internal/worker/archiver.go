package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/resilience"
	"github.com/skylane/utm/internal/snapshot"
)

// Snapshotter captures center state.
type Snapshotter interface {
	ID() string
	Snapshot() control.Snapshot
}

// Restorer replaces center state.
type Restorer interface {
	ID() string
	Restore(control.Snapshot) error
}

// ArchiverConfig holds configuration for an Archiver.
type ArchiverConfig struct {
	Source   Snapshotter
	Store    snapshot.Store
	Executor *resilience.Executor
	Interval time.Duration
	Retain   int
	Logger   zerolog.Logger
}

// Archiver saves center snapshots periodically and prunes old ones.
type Archiver struct {
	source   Snapshotter
	store    snapshot.Store
	exec     *resilience.Executor
	interval time.Duration
	retain   int
	logger   zerolog.Logger
}

// NewArchiver creates an archiver. A nil Executor gets a default one.
func NewArchiver(cfg ArchiverConfig) *Archiver {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().ArchiveInterval
	}
	if cfg.Executor == nil {
		cfg.Executor = resilience.NewExecutor(resilience.DefaultConfig("snapshot-store"))
	}
	return &Archiver{
		source:   cfg.Source,
		store:    cfg.Store,
		exec:     cfg.Executor,
		interval: cfg.Interval,
		retain:   cfg.Retain,
		logger:   cfg.Logger.With().Str("component", "archiver").Logger(),
	}
}

// Run archives every interval until ctx is done, then takes a final
// snapshot with a short grace period.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_, err := a.ArchiveOnce(final)
			cancel()
			return err
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// ArchiveOnce captures, saves and prunes.
func (a *Archiver) ArchiveOnce(ctx context.Context) (snapshot.Info, error) {
	doc := snapshot.FromSnapshot(a.source.Snapshot())

	var info snapshot.Info
	err := a.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		info, err = a.store.Save(ctx, doc)
		return err
	})
	if err != nil {
		return snapshot.Info{}, fmt.Errorf("save snapshot: %w", err)
	}

	a.logger.Debug().
		Str("snapshot_id", info.ID).
		Int("bytes", info.Size).
		Int("vehicles", len(doc.Vehicles)).
		Msg("snapshot saved")

	if err := a.prune(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("snapshot prune failed")
	}
	return info, nil
}

func (a *Archiver) prune(ctx context.Context) error {
	if a.retain <= 0 {
		return nil
	}
	infos, err := a.store.List(ctx, a.source.ID())
	if err != nil {
		return err
	}
	if len(infos) <= a.retain {
		return nil
	}
	for _, info := range infos[a.retain:] {
		err := a.exec.Do(ctx, func(ctx context.Context) error {
			err := a.store.Delete(ctx, info.ID)
			if errors.Is(err, snapshot.ErrNotFound) {
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RestoreLatest loads the newest snapshot for the center from store and
// restores it. It reports false when the store holds none.
func RestoreLatest(ctx context.Context, store snapshot.Store, center Restorer) (bool, error) {
	doc, err := store.Latest(ctx, center.ID())
	if errors.Is(err, snapshot.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	snap, err := doc.Snapshot()
	if err != nil {
		return false, err
	}
	if err := center.Restore(snap); err != nil {
		return false, err
	}
	return true, nil
}

// RunExpiry sweeps lapsed authorizations every interval until ctx is done.
func RunExpiry(ctx context.Context, m Maintainer, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultConfig().ExpiryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.ExpireAuthorizations(); n > 0 {
				logger.Info().Int("expired", n).Msg("authorizations expired")
			}
		}
	}
}
