// Package api provides the HTTP API of the traffic control center.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/skylane/utm/internal/api/handler"
	"github.com/skylane/utm/internal/api/middleware"
	"github.com/skylane/utm/internal/auth"
	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Center *control.Center
	// Tokens validates operator bearer tokens. Without it every
	// authenticated endpoint answers 401.
	Tokens   middleware.TokenValidator
	Registry *resilience.Registry
	Checks   map[string]handler.Check

	// Zero values fall back to middleware.ReadRateLimit and WriteRateLimit.
	ReadLimit  middleware.RateLimitConfig
	WriteLimit middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "utmd"
	}
	readLimit := cfg.ReadLimit
	if readLimit.RequestLimit <= 0 {
		readLimit = middleware.ReadRateLimit
	}
	writeLimit := cfg.WriteLimit
	if writeLimit.RequestLimit <= 0 {
		writeLimit = middleware.WriteRateLimit
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Center:    cfg.Center,
		Registry:  cfg.Registry,
		Checks:    cfg.Checks,
	})
	trafficHandler := handler.NewTrafficHandler(cfg.Center, cfg.Logger)
	airspaceHandler := handler.NewAirspaceHandler(cfg.Center)

	viewer := middleware.Auth(cfg.Tokens, auth.RoleViewer)
	operator := middleware.Auth(cfg.Tokens, auth.RoleOperator)
	readRateLimit := middleware.RateLimitByIP(readLimit)
	writeRateLimit := middleware.RateLimitByOperator(writeLimit)

	// write applies operator auth and the per-operator budget.
	write := func(r chi.Router) chi.Router {
		return r.With(operator, writeRateLimit)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(viewer).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/traffic", func(r chi.Router) {
			r.Use(readRateLimit)

			r.Route("/vehicles", func(r chi.Router) {
				r.Get("/", trafficHandler.ListVehicles)
				write(r).Post("/", trafficHandler.RegisterVehicle)
				r.Route("/{vehicleId}", func(r chi.Router) {
					r.Get("/", trafficHandler.GetVehicle)
					write(r).Delete("/", trafficHandler.UnregisterVehicle)
					write(r).Put("/telemetry", trafficHandler.UpdateTelemetry)
					r.Get("/risks", trafficHandler.VehicleRisks)
				})
			})

			r.Route("/authorizations", func(r chi.Router) {
				r.Get("/", trafficHandler.ListAuthorizations)
				write(r).Post("/", trafficHandler.RequestAuthorization)
				write(r).Post("/expire", trafficHandler.ExpireAuthorizations)
				r.Get("/{vehicleId}", trafficHandler.GetAuthorization)
				write(r).Delete("/{vehicleId}", trafficHandler.CancelAuthorization)
			})

			r.Get("/area", trafficHandler.VehiclesInArea)
			r.Get("/risks/critical", trafficHandler.CriticalRisks)
			r.Get("/stats", trafficHandler.Stats)
			write(r).Put("/operational", trafficHandler.SetOperational)

			r.Route("/ground-stations", func(r chi.Router) {
				r.Get("/", trafficHandler.GroundStations)
				write(r).Put("/{stationId}/operational", trafficHandler.SetGroundStationOperational)
			})
		})

		r.Route("/airspace", func(r chi.Router) {
			r.Use(readRateLimit)
			r.Get("/", airspaceHandler.Summary)
			r.Get("/routes", airspaceHandler.ListRoutes)
			r.Get("/routes/{routeId}", airspaceHandler.GetRoute)
			r.Get("/zones", airspaceHandler.ListZones)
			r.Get("/obstacles", airspaceHandler.ListObstacles)
			r.Get("/check", airspaceHandler.CheckPosition)
		})
	})

	return r
}
