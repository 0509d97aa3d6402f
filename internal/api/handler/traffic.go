package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skylane/utm/internal/api/models"
	"github.com/skylane/utm/internal/api/response"
	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/vehicle"
)

// TrafficHandler serves the vehicle, authorization and risk endpoints.
type TrafficHandler struct {
	center *control.Center
	logger zerolog.Logger
	now    func() time.Time
}

// NewTrafficHandler creates a new TrafficHandler.
func NewTrafficHandler(center *control.Center, logger zerolog.Logger) *TrafficHandler {
	return &TrafficHandler{center: center, logger: logger, now: time.Now}
}

// ListVehicles handles GET /v1/traffic/vehicles.
func (h *TrafficHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	list := models.VehicleList{Vehicles: []models.Vehicle{}}
	for v := range h.center.Vehicles() {
		list.Vehicles = append(list.Vehicles, h.vehicle(v))
	}
	list.Count = len(list.Vehicles)
	response.JSON(w, r, http.StatusOK, list)
}

// GetVehicle handles GET /v1/traffic/vehicles/{vehicleId}.
func (h *TrafficHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleId")
	v, ok := h.center.Vehicle(id)
	if !ok {
		response.NotFound(w, r, "vehicle "+id+" is not registered")
		return
	}
	response.JSON(w, r, http.StatusOK, h.vehicle(v))
}

// RegisterVehicle handles POST /v1/traffic/vehicles.
func (h *TrafficHandler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var input models.RegisterRequest
	if !response.DecodeJSON(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid registration", errs)
		return
	}

	v, err := input.Vehicle.Vehicle()
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if input.Position != nil {
		v.SetPosition(input.Position.Geo(h.now()))
	}
	if err := h.center.RegisterVehicle(v); err != nil {
		controlError(w, r, err)
		return
	}

	h.logger.Info().
		Str("vehicle_id", v.ID()).
		Str("operator_id", GetOperatorID(r.Context())).
		Msg("Vehicle registered via API")

	registered, ok := h.center.Vehicle(v.ID())
	if !ok {
		// Unregistered concurrently.
		response.NotFound(w, r, "vehicle "+v.ID()+" is not registered")
		return
	}
	response.Created(w, r, "/v1/traffic/vehicles/"+v.ID(), h.vehicle(registered))
}

// UnregisterVehicle handles DELETE /v1/traffic/vehicles/{vehicleId}.
func (h *TrafficHandler) UnregisterVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleId")
	if !h.center.UnregisterVehicle(id) {
		response.NotFound(w, r, "vehicle "+id+" is not registered")
		return
	}
	h.logger.Info().
		Str("vehicle_id", id).
		Str("operator_id", GetOperatorID(r.Context())).
		Msg("Vehicle unregistered via API")
	response.NoContent(w, r)
}

// UpdateTelemetry handles PUT /v1/traffic/vehicles/{vehicleId}/telemetry.
func (h *TrafficHandler) UpdateTelemetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleId")

	var input models.TelemetryUpdate
	if !response.DecodeJSON(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid telemetry", errs)
		return
	}

	result, err := h.center.UpdateTelemetry(id, input.Telemetry(h.now()))
	if err != nil {
		controlError(w, r, err)
		return
	}
	if result == nil {
		response.NotFound(w, r, "vehicle "+id+" is not registered")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewUpdateResult(result))
}

// VehicleRisks handles GET /v1/traffic/vehicles/{vehicleId}/risks.
func (h *TrafficHandler) VehicleRisks(w http.ResponseWriter, r *http.Request) {
	risks, err := h.center.CollisionRisksFor(chi.URLParam(r, "vehicleId"))
	if err != nil {
		controlError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewRisks(risks))
}

// CriticalRisks handles GET /v1/traffic/risks/critical.
func (h *TrafficHandler) CriticalRisks(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewRisks(h.center.CriticalCollisionRisks()))
}

// VehiclesInArea handles GET /v1/traffic/area?lat=&lon=&radius=.
func (h *TrafficHandler) VehiclesInArea(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs []models.FieldError
	lat := floatParam(q.Get("lat"), "lat", &errs)
	lon := floatParam(q.Get("lon"), "lon", &errs)
	radius := floatParam(q.Get("radius"), "radius", &errs)
	if len(errs) == 0 {
		errs = models.Position{Lat: lat, Lon: lon}.Validate("center")
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid area query", errs)
		return
	}

	found, err := h.center.VehiclesInArea(geo.Position{Lat: lat, Lon: lon}, radius)
	if err != nil {
		controlError(w, r, err)
		return
	}
	list := models.VehicleList{Count: len(found), Vehicles: make([]models.Vehicle, 0, len(found))}
	for _, v := range found {
		list.Vehicles = append(list.Vehicles, h.vehicle(v))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// Stats handles GET /v1/traffic/stats.
func (h *TrafficHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewStats(h.center.Stats()))
}

// SetOperational handles PUT /v1/traffic/operational.
func (h *TrafficHandler) SetOperational(w http.ResponseWriter, r *http.Request) {
	var input models.OperationalRequest
	if !response.DecodeJSON(w, r, &input) {
		return
	}
	if input.Operational == nil {
		response.BadRequest(w, r, "operational is required", []models.FieldError{
			{Field: "operational", Message: "required", Code: "REQUIRED"},
		})
		return
	}
	h.center.SetOperational(*input.Operational)
	h.logger.Warn().
		Bool("operational", *input.Operational).
		Str("operator_id", GetOperatorID(r.Context())).
		Msg("Center operational state set via API")
	response.JSON(w, r, http.StatusOK, models.NewStats(h.center.Stats()))
}

// RequestAuthorization handles POST /v1/traffic/authorizations. A rejected
// request is still created and carries its rejection reason.
func (h *TrafficHandler) RequestAuthorization(w http.ResponseWriter, r *http.Request) {
	var input models.AuthorizationRequest
	if !response.DecodeJSON(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid authorization request", errs)
		return
	}

	v, err := input.Vehicle.Vehicle()
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	now := h.now()
	auth, err := h.center.RequestAuthorization(v, input.Departure.Geo(now), input.Destination.Geo(now))
	if err != nil {
		controlError(w, r, err)
		return
	}
	response.Created(w, r, "/v1/traffic/authorizations/"+auth.VehicleID, models.NewAuthorization(*auth))
}

// ListAuthorizations handles GET /v1/traffic/authorizations[?status=].
func (h *TrafficHandler) ListAuthorizations(w http.ResponseWriter, r *http.Request) {
	filter := vehicle.AuthorizationStatus(r.URL.Query().Get("status"))
	out := []models.Authorization{}
	for _, a := range h.center.Authorizations() {
		if filter != "" && a.Status != filter {
			continue
		}
		out = append(out, models.NewAuthorization(a))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// GetAuthorization handles GET /v1/traffic/authorizations/{vehicleId}.
func (h *TrafficHandler) GetAuthorization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleId")
	a, ok := h.center.Authorization(id)
	if !ok {
		response.NotFound(w, r, "no authorization for vehicle "+id)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAuthorization(a))
}

// CancelAuthorization handles DELETE /v1/traffic/authorizations/{vehicleId}.
func (h *TrafficHandler) CancelAuthorization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicleId")
	if _, ok := h.center.Authorization(id); !ok {
		response.NotFound(w, r, "no authorization for vehicle "+id)
		return
	}
	if !h.center.CancelAuthorization(id) {
		response.Conflict(w, r, "authorization for vehicle "+id+" is no longer pending or approved")
		return
	}
	response.NoContent(w, r)
}

// ExpireAuthorizations handles POST /v1/traffic/authorizations/expire.
func (h *TrafficHandler) ExpireAuthorizations(w http.ResponseWriter, r *http.Request) {
	n := h.center.ExpireAuthorizations()
	response.JSON(w, r, http.StatusOK, map[string]int{"expired": n})
}

// GroundStations handles GET /v1/traffic/ground-stations.
func (h *TrafficHandler) GroundStations(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewGroundStations(h.center.GroundStations()))
}

// SetGroundStationOperational handles
// PUT /v1/traffic/ground-stations/{stationId}/operational.
func (h *TrafficHandler) SetGroundStationOperational(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "stationId")
	var input models.OperationalRequest
	if !response.DecodeJSON(w, r, &input) {
		return
	}
	if input.Operational == nil {
		response.BadRequest(w, r, "operational is required", []models.FieldError{
			{Field: "operational", Message: "required", Code: "REQUIRED"},
		})
		return
	}
	if err := h.center.SetGroundStationOperational(id, *input.Operational); err != nil {
		response.NotFound(w, r, err.Error())
		return
	}
	response.NoContent(w, r)
}

func (h *TrafficHandler) vehicle(v vehicle.Reader) models.Vehicle {
	gs, _ := h.center.GroundStationFor(v.ID())
	return models.NewVehicle(v, gs)
}

// floatParam parses a required query value, appending a field error on
// failure.
func floatParam(raw, field string, errs *[]models.FieldError) float64 {
	if raw == "" {
		*errs = append(*errs, models.FieldError{Field: field, Message: "required", Code: "REQUIRED"})
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, models.FieldError{Field: field, Message: "must be a number", Code: "INVALID"})
	}
	return f
}
