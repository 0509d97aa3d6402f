package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/skylane/utm/internal/api/models"
)

// Recovery answers a panicking traffic handler with a 500 problem so one bad
// vehicle request cannot take the control center's listener down.
// http.ErrAbortHandler is re-raised for net/http to handle.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				requestID := GetRequestID(r.Context())
				evt := log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("route", routePattern(r)).
					Interface("panic", rec).
					Bytes("stack", debug.Stack())
				for _, k := range resourceParams {
					if v := urlParam(r, k.param); v != "" {
						evt = evt.Str(k.field, v)
					}
				}
				evt.Msg("traffic handler panicked")

				models.NewInternalError(requestID, "traffic request failed inside the control center").
					WithInstance(r.URL.Path).
					Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
