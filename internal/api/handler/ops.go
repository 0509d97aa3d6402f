// Package handler provides HTTP handlers for the traffic control API.
package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/skylane/utm/internal/api/models"
	"github.com/skylane/utm/internal/api/response"
	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/resilience"
)

// Check probes a subsystem such as the database or the message bus.
type Check func(ctx context.Context) error

// OpsConfig configures the operational endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string
	Center    *control.Center
	// Registry supplies breaker state of outbound dependencies. Optional.
	Registry *resilience.Registry
	// Checks are probed by readiness and status, keyed by subsystem name.
	Checks map[string]Check
	// CheckTimeout bounds each probe. Default 2s.
	CheckTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready when the
// center is operational with an airspace loaded and every check passes.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.subsystems(r.Context())
	status := overall(subsystems, nil)

	details := make(map[string]any, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
	}
	health := models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	}

	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and dependency status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	subsystems := h.subsystems(r.Context())
	deps := h.dependencies()

	status := models.SystemStatus{
		Status:       overall(subsystems, deps),
		Time:         models.Timestamp(time.Now()),
		CenterID:     h.cfg.Center.ID(),
		Operational:  h.cfg.Center.IsOperational(),
		Subsystems:   subsystems,
		Dependencies: deps,
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems(ctx context.Context) []models.SubsystemStatus {
	out := []models.SubsystemStatus{
		boolStatus("control-center", h.cfg.Center.IsOperational(), "not operational"),
		boolStatus("airspace", h.cfg.Center.Airspace() != nil, "no airspace loaded"),
	}

	names := make([]string, 0, len(h.cfg.Checks))
	for name := range h.cfg.Checks {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, h.cfg.CheckTimeout)
		err := h.cfg.Checks[name](cctx)
		cancel()
		s := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) dependencies() []models.DependencyStatus {
	out := []models.DependencyStatus{}
	if h.cfg.Registry == nil {
		return out
	}
	for _, d := range h.cfg.Registry.All() {
		s := models.DependencyStatus{
			Name:         d.Name,
			CircuitState: d.State.String(),
			Status:       models.HealthStatusFail,
		}
		switch {
		case d.Healthy():
			s.Status = models.HealthStatusOK
		case d.Degraded():
			s.Status = models.HealthStatusDegraded
		}
		if d.LastSuccessAt != nil {
			ts := models.Timestamp(*d.LastSuccessAt)
			s.LastSuccessAt = &ts
		}
		if d.LastFailureAt != nil {
			ts := models.Timestamp(*d.LastFailureAt)
			s.LastFailureAt = &ts
		}
		if d.LastError != "" {
			msg := d.LastError
			s.Message = &msg
		}
		out = append(out, s)
	}
	return out
}

func boolStatus(name string, ok bool, detail string) models.SubsystemStatus {
	if ok {
		return models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
	}
	return models.SubsystemStatus{Name: name, Status: models.HealthStatusFail, Detail: &detail}
}

// overall fails on any failed subsystem. Unhealthy dependencies only degrade
// the service.
func overall(subsystems []models.SubsystemStatus, deps []models.DependencyStatus) models.HealthStatus {
	status := models.HealthStatusOK
	for _, s := range subsystems {
		if s.Status == models.HealthStatusFail {
			return models.HealthStatusFail
		}
		if s.Status == models.HealthStatusDegraded {
			status = models.HealthStatusDegraded
		}
	}
	for _, d := range deps {
		if d.Status != models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
	}
	return status
}
