package middleware

import (
	"mime"
	"net/http"

	"github.com/skylane/utm/internal/api/models"
)

// RequireJSON guards the write endpoints (registrations, telemetry, airspace
// uploads) against non-JSON payloads. A missing Content-Type is let through.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if ct := r.Header.Get("Content-Type"); ct != "" {
				mt, _, err := mime.ParseMediaType(ct)
				if err != nil || mt != "application/json" {
					models.NewProblem(models.ProblemTypeUnsupportedMedia, http.StatusUnsupportedMediaType, GetRequestID(r.Context()),
						"traffic API payloads are JSON only, got "+ct).
						WithInstance(r.URL.Path).
						Write(w)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
