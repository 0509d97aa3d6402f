package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skylane/utm/internal/airspace"
	"github.com/skylane/utm/internal/api/models"
	"github.com/skylane/utm/internal/api/response"
	"github.com/skylane/utm/internal/control"
	"github.com/skylane/utm/internal/geo"
)

// AirspaceHandler serves the static airspace for renderers.
type AirspaceHandler struct {
	center *control.Center
}

// NewAirspaceHandler creates a new AirspaceHandler.
func NewAirspaceHandler(center *control.Center) *AirspaceHandler {
	return &AirspaceHandler{center: center}
}

// model writes 503 and returns nil when no airspace is loaded.
func (h *AirspaceHandler) model(w http.ResponseWriter, r *http.Request) *airspace.Model {
	m := h.center.Airspace()
	if m == nil {
		response.ServiceUnavailable(w, r, "no airspace loaded")
	}
	return m
}

// Summary handles GET /v1/airspace.
func (h *AirspaceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	m := h.model(w, r)
	if m == nil {
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAirspace(m))
}

// ListRoutes handles GET /v1/airspace/routes[?active=true].
func (h *AirspaceHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	m := h.model(w, r)
	if m == nil {
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	occupancy := h.center.Stats().SegmentOccupancy

	out := []models.Route{}
	for route := range m.Routes() {
		if activeOnly && !route.Active {
			continue
		}
		out = append(out, models.NewRoute(route, m.RouteSegments(route.ID), occupancy))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// GetRoute handles GET /v1/airspace/routes/{routeId}.
func (h *AirspaceHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	m := h.model(w, r)
	if m == nil {
		return
	}
	id := chi.URLParam(r, "routeId")
	route, ok := m.Route(id)
	if !ok {
		response.NotFound(w, r, "route "+id+" not found")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewRoute(route, m.RouteSegments(id), h.center.Stats().SegmentOccupancy))
}

// ListZones handles GET /v1/airspace/zones.
func (h *AirspaceHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	m := h.model(w, r)
	if m == nil {
		return
	}
	out := []models.Zone{}
	for z := range m.RestrictedZones() {
		out = append(out, models.NewZone(z))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// ListObstacles handles GET /v1/airspace/obstacles.
func (h *AirspaceHandler) ListObstacles(w http.ResponseWriter, r *http.Request) {
	m := h.model(w, r)
	if m == nil {
		return
	}
	out := []models.Obstacle{}
	for o := range m.Obstacles() {
		out = append(out, models.NewObstacle(o))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// CheckPosition handles GET /v1/airspace/check?lat=&lon=&alt=.
func (h *AirspaceHandler) CheckPosition(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs []models.FieldError
	lat := floatParam(q.Get("lat"), "lat", &errs)
	lon := floatParam(q.Get("lon"), "lon", &errs)
	alt := floatParam(q.Get("alt"), "alt", &errs)
	if len(errs) == 0 {
		errs = models.Position{Lat: lat, Lon: lon, Alt: alt}.Validate("position")
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid position", errs)
		return
	}

	m := h.model(w, r)
	if m == nil {
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewPositionCheck(m, geo.Position{Lat: lat, Lon: lon, Alt: alt}))
}
