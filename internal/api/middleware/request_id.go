// Package middleware wraps the traffic API handlers of a control center.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader names the correlation header echoed on every traffic API
// response. Its value doubles as the trace_id of problem documents.
const RequestIDHeader = "X-Request-Id"

// Ground stations may forward their own ids; longer values are replaced.
const maxRequestIDLength = 64

type requestIDKey struct{}

// RequestID tags each vehicle or operator call with a correlation id, keeping
// the one a ground station sent when it is usable.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID reads the correlation id, or "" outside a RequestID chain.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
