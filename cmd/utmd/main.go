// Package main provides the entrypoint for the UTM traffic control daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/api"
	"github.com/skylane/utm/internal/api/handler"
	"github.com/skylane/utm/internal/api/middleware"
	"github.com/skylane/utm/internal/auth"
	"github.com/skylane/utm/internal/config"
	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/database"
	"github.com/skylane/utm/internal/logging"
	"github.com/skylane/utm/internal/resilience"
	"github.com/skylane/utm/internal/snapshot"
	"github.com/skylane/utm/internal/telemetry"
	"github.com/skylane/utm/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "utmd"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	issueFor := flag.String("issue-token", "", "print a bearer token for this operator id and exit")
	issueRole := flag.String("role", string(auth.RoleOperator), "role for -issue-token (viewer or operator)")
	flag.Parse()

	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "utmd: %v\n", err)
		os.Exit(1)
	}

	log, logCloser, err := logging.New(cfg.Logging, serviceName, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "utmd: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if envErr == nil {
		log.Debug().Msg("loaded environment from .env")
	}

	if *issueFor != "" {
		if err := issueToken(cfg.Auth, *issueFor, auth.Role(*issueRole)); err != nil {
			log.Fatal().Err(err).Msg("failed to issue token")
		}
		return
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("center_id", cfg.Center.ID).
		Msg("starting UTM control center")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		CenterID:       cfg.Center.ID,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
	centerMetrics, err := control.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize center metrics")
	}

	center, err := control.NewCenter(control.Config{
		ID:                    cfg.Center.ID,
		MaxActiveVehicles:     cfg.Center.MaxActiveVehicles,
		AuthorizationValidity: cfg.Center.AuthorizationValidity,
		SegmentThreshold:      cfg.Center.SegmentThresholdM,
		GroundStations:        cfg.Center.Stations(),
		Collision:             cfg.Collision.Engine(),
		Logger:                log,
		Metrics:               centerMetrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create control center")
	}

	registry := resilience.NewRegistry()
	checks := make(map[string]handler.Check)

	store, pool, err := openSnapshotStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open snapshot store")
	}
	if pool != nil {
		defer pool.Close()
		checks["database"] = pool.Ping
	}
	if store != nil {
		defer store.Close()
	}

	storeExec := resilience.NewExecutor(withRegistry(resilience.DefaultConfig("snapshot-store"), registry))

	if store != nil && cfg.Snapshot.Restore {
		restored, err := worker.RestoreLatest(ctx, store, center)
		if err != nil {
			log.Error().Err(err).Msg("failed to restore snapshot, starting empty")
		} else if restored {
			log.Info().Int("vehicles", center.ActiveCount()).Msg("center state restored from snapshot")
		}
	}

	if center.Airspace() == nil && cfg.Airspace.File != "" {
		model, err := airspace.LoadFile(cfg.Airspace.File)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Airspace.File).Msg("failed to load airspace")
		}
		if err := center.LoadAirspace(model); err != nil {
			log.Fatal().Err(err).Msg("failed to install airspace")
		}
	}
	if center.Airspace() == nil {
		log.Warn().Msg("no airspace loaded - readiness will fail until one is installed")
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		Expiry:     cfg.Auth.TokenExpiry,
	})
	var validator middleware.TokenValidator
	switch {
	case errors.Is(err, auth.ErrMissingSecret):
		log.Warn().Msg("auth.signing_key not set - authenticated endpoints will answer 401")
	case err != nil:
		log.Fatal().Err(err).Msg("failed to initialize token service")
	default:
		validator = tokens
	}

	sched := cfg.Worker.Scheduling()
	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		Updater:     center,
		Concurrency: sched.Concurrency,
		Logger:      log,
	})
	throttle := worker.NewThrottle(sched.ThrottleRate, sched.ThrottleBurst)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.NATS.Enabled {
		ingest, err := worker.ConnectNATS(gctx, worker.NATSConfig{
			URL:        cfg.NATS.URL,
			Subject:    cfg.NATS.Subject,
			Queue:      cfg.NATS.Queue,
			Dispatcher: dispatcher,
			Throttle:   throttle,
			Executor:   resilience.NewExecutor(withRegistry(resilience.DefaultConfig("nats"), registry)),
			Logger:     log,
		})
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("failed to connect to nats")
		}
		defer ingest.Close()
		if err := ingest.Start(gctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start nats ingest")
		}
		checks["nats"] = func(context.Context) error {
			if !ingest.Conn().IsConnected() {
				return errors.New("nats connection is " + ingest.Conn().Status().String())
			}
			return nil
		}
	}

	if cfg.PubSub.Enabled {
		ps, err := worker.NewPubSubHandler(gctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Dispatcher:       dispatcher,
			Throttle:         throttle,
			Maintainer:       center,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer ps.Close()
		g.Go(func() error { return ps.Start(gctx) })
	}

	if store != nil {
		archiver := worker.NewArchiver(worker.ArchiverConfig{
			Source:   center,
			Store:    store,
			Executor: storeExec,
			Interval: sched.ArchiveInterval,
			Retain:   sched.ArchiveRetain,
			Logger:   log,
		})
		g.Go(func() error { return archiver.Run(gctx) })
	}

	g.Go(func() error {
		worker.RunExpiry(gctx, center, sched.ExpiryInterval, log)
		return nil
	})

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		RequireTLS:  cfg.Server.RequireTLS,
		Center:      center,
		Tokens:      validator,
		Registry:    registry,
		Checks:      checks,
		ReadLimit:   cfg.Server.ReadRateLimit(),
		WriteLimit:  cfg.Server.WriteRateLimit(),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("control center stopped with error")
		return
	}

	log.Info().Msg("control center stopped")
}

// openSnapshotStore opens the configured backend. The pool is non-nil only
// for the postgres backend and is owned by the caller.
func openSnapshotStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (snapshot.Store, *pgxpool.Pool, error) {
	switch cfg.Snapshot.Backend {
	case config.SnapshotNone:
		log.Warn().Msg("snapshots disabled")
		return nil, nil, nil
	case config.SnapshotBolt:
		store, err := snapshot.NewBoltStore(cfg.Snapshot.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.Snapshot.BoltPath).Msg("bolt snapshot store opened")
		return store, nil, nil
	case config.SnapshotPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := snapshot.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().Str("dsn", cfg.Database.Redacted()).Msg("database connected")
		return store, pool, nil
	case config.SnapshotGCS:
		bucket, err := snapshot.NewGCSBucket(ctx, cfg.Snapshot.Bucket, cfg.Snapshot.GCSCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("bucket", cfg.Snapshot.Bucket).Str("prefix", cfg.Snapshot.Prefix).Msg("gcs snapshot store opened")
		return snapshot.NewObjectStore(bucket, cfg.Snapshot.Prefix), nil, nil
	case config.SnapshotS3:
		bucket, err := snapshot.NewS3Bucket(ctx, snapshot.S3Options{
			Bucket:          cfg.Snapshot.Bucket,
			Region:          cfg.Snapshot.S3Region,
			Endpoint:        cfg.Snapshot.S3Endpoint,
			AccessKeyID:     cfg.Snapshot.S3AccessKeyID,
			SecretAccessKey: cfg.Snapshot.S3SecretAccessKey,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("bucket", cfg.Snapshot.Bucket).Str("prefix", cfg.Snapshot.Prefix).Msg("s3 snapshot store opened")
		return snapshot.NewObjectStore(bucket, cfg.Snapshot.Prefix), nil, nil
	default:
		return snapshot.NewMemoryStore(), nil, nil
	}
}

func withRegistry(c resilience.Config, r *resilience.Registry) resilience.Config {
	c.Registry = r
	return c
}

func issueToken(cfg config.AuthConfig, operatorID string, role auth.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: cfg.SigningKey,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		Expiry:     cfg.TokenExpiry,
	})
	if err != nil {
		return err
	}
	token, expires, err := tokens.Issue(operatorID, role)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n# expires %s\n", token, expires.Format(time.RFC3339))
	return nil
}
