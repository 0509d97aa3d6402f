package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/skylane/utm/internal/api/models"
	"github.com/skylane/utm/internal/auth"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type claimsKey struct{}

// Auth requires a valid bearer token whose role satisfies required. A nil
// validator rejects every request.
func Auth(validator TokenValidator, required auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				writeUnauthorized(w, r, "authentication is not configured")
				return
			}

			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}
			token := strings.TrimSpace(header[len(prefix):])
			if token == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					writeUnauthorized(w, r, "access token has expired")
				} else {
					writeUnauthorized(w, r, "invalid access token")
				}
				return
			}
			if !claims.Role.Allows(required) {
				models.NewForbidden(GetRequestID(r.Context()), "role "+string(claims.Role)+" may not perform this action").
					WithInstance(r.URL.Path).
					Write(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="utm"`)
	models.NewUnauthorized(GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path).
		Write(w)
}

// GetClaims returns the token claims for an authenticated request.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// GetOperatorID returns the authenticated operator id, or "".
func GetOperatorID(ctx context.Context) string {
	if c, ok := GetClaims(ctx); ok {
		return c.OperatorID
	}
	return ""
}
