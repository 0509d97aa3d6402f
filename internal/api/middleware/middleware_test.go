package middleware_test

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/api/middleware"
	"github.com/skylane/utm/internal/api/models"
	"github.com/skylane/utm/internal/auth"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set(middleware.RequestIDHeader, "caller-42")
		rec := serve(h, req)
		assert.Equal(t, "caller-42", seen)
		assert.Equal(t, "caller-42", rec.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("oversized id replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set(middleware.RequestIDHeader, strings.Repeat("x", 65))
		serve(h, req)
		assert.NotEqual(t, strings.Repeat("x", 65), seen)
	})
}

type stubValidator struct {
	claims *auth.Claims
	err    error
}

func (s stubValidator) Validate(string) (*auth.Claims, error) { return s.claims, s.err }

func TestAuth(t *testing.T) {
	var operator string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator = middleware.GetOperatorID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name      string
		validator middleware.TokenValidator
		header    string
		status    int
	}{
		{"no validator", nil, "Bearer abc", http.StatusUnauthorized},
		{"missing header", stubValidator{}, "", http.StatusUnauthorized},
		{"wrong scheme", stubValidator{}, "Basic abc", http.StatusUnauthorized},
		{"empty token", stubValidator{}, "Bearer   ", http.StatusUnauthorized},
		{"expired", stubValidator{err: auth.ErrTokenExpired}, "Bearer abc", http.StatusUnauthorized},
		{"invalid", stubValidator{err: errors.New("bad signature")}, "Bearer abc", http.StatusUnauthorized},
		{"viewer on operator route", stubValidator{claims: &auth.Claims{OperatorID: "op-7", Role: auth.RoleViewer}}, "Bearer abc", http.StatusForbidden},
		{"operator", stubValidator{claims: &auth.Claims{OperatorID: "op-7", Role: auth.RoleOperator}}, "bearer abc", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			operator = ""
			req := httptest.NewRequest(http.MethodPost, "/v1/traffic/vehicles", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := serve(middleware.Auth(tt.validator, auth.RoleOperator)(next), req)

			assert.Equal(t, tt.status, rec.Code)
			switch tt.status {
			case http.StatusOK:
				assert.Equal(t, "op-7", operator)
			case http.StatusUnauthorized:
				assert.Equal(t, `Bearer realm="utm"`, rec.Header().Get("WWW-Authenticate"))
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestAuth_ExpiredTokenDetail(t *testing.T) {
	h := middleware.Auth(stubValidator{err: auth.ErrTokenExpired}, auth.RoleViewer)(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	req.Header.Set("Authorization", "Bearer abc")

	rec := serve(h, req)

	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "access token has expired", p.Detail)
}

func TestRequireTLS(t *testing.T) {
	t.Run("disabled passes plain http", func(t *testing.T) {
		rec := serve(middleware.RequireTLS(false)(okHandler), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("plain http rejected", func(t *testing.T) {
		rec := serve(middleware.RequireTLS(true)(okHandler), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("forwarded https accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("X-Forwarded-Proto", "https")
		assert.Equal(t, http.StatusOK, serve(middleware.RequireTLS(true)(okHandler), req).Code)
	})

	t.Run("direct tls accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.TLS = &tls.ConnectionState{}
		assert.Equal(t, http.StatusOK, serve(middleware.RequireTLS(true)(okHandler), req).Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := serve(middleware.SecurityHeaders(okHandler), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestRequireJSON(t *testing.T) {
	tests := []struct {
		method      string
		contentType string
		status      int
	}{
		{http.MethodPost, "application/json", http.StatusOK},
		{http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{http.MethodPut, "text/plain", http.StatusUnsupportedMediaType},
		{http.MethodPost, "", http.StatusOK},
		{http.MethodGet, "text/plain", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.contentType, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			assert.Equal(t, tt.status, serve(middleware.RequireJSON(okHandler), req).Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := serve(middleware.RequestID(middleware.Recovery(logger)(panicking)), httptest.NewRequest(http.MethodGet, "/v1/traffic/stats", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, models.ProblemTypeInternal, p.Type)
	assert.NotEmpty(t, p.TraceID)
	assert.Contains(t, logs.String(), "traffic handler panicked")
}

func TestRecovery_LogsAddressedVehicle(t *testing.T) {
	var logs bytes.Buffer
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recovery(zerolog.New(&logs)))
	r.Put("/v1/vehicles/{vehicleId}/position", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := serve(r, httptest.NewRequest(http.MethodPut, "/v1/vehicles/drone-7/position", http.NoBody))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry))
	assert.Equal(t, "drone-7", entry["vehicle_id"])
	assert.Equal(t, "/v1/vehicles/{vehicleId}/position", entry["route"])
	assert.Equal(t, http.MethodPut, entry["method"])
}

func TestRequireJSON_ProblemNamesContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/vehicles", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "text/csv")

	rec := serve(middleware.RequestID(middleware.RequireJSON(okHandler)), req)

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Contains(t, p.Detail, "text/csv")
	assert.Equal(t, "/v1/vehicles", p.Instance)
}

func TestRecovery_AbortHandlerRepanics(t *testing.T) {
	h := middleware.Recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(h, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	})
}

func TestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/v1/traffic/stats", http.StatusOK, "info"},
		{"/v1/traffic/vehicles/x", http.StatusNotFound, "warn"},
		{"/v1/traffic/stats", http.StatusInternalServerError, "error"},
		{"/v1/ops/health", http.StatusOK, "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.path+" "+http.StatusText(tt.status), func(t *testing.T) {
			var logs bytes.Buffer
			h := middleware.Logger(zerolog.New(&logs))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			serve(h, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			var line map[string]any
			require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, float64(tt.status), line["status"])
			assert.Equal(t, tt.path, line["route"])
		})
	}
}

func TestRateLimitByIP(t *testing.T) {
	h := middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute})(okHandler)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/v1/traffic/stats", http.NoBody)
		req.RemoteAddr = "192.0.2.10:4000"
		codes = append(codes, serve(h, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/v1/traffic/stats", http.NoBody)
	req.RemoteAddr = "192.0.2.10:4000"
	rec := serve(h, req)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/v1/traffic/stats", http.NoBody)
	other.RemoteAddr = "192.0.2.11:4000"
	assert.Equal(t, http.StatusOK, serve(h, other).Code)
}
