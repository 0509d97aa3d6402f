package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/utm/internal/auth"
)

func newService(t *testing.T, mutate ...func(*auth.TokenConfig)) *auth.TokenService {
	t.Helper()
	cfg := auth.TokenConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "utm-center",
		Audience:   "utm-api",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := auth.NewTokenService(cfg)
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := newService(t)

	token, expiresAt, err := svc.Issue("ops-7", auth.RoleOperator)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-7", claims.OperatorID)
	assert.Equal(t, "ops-7", claims.Subject)
	assert.Equal(t, auth.RoleOperator, claims.Role)
	assert.Equal(t, "utm-center", claims.Issuer)
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := auth.NewTokenService(auth.TokenConfig{})
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestTokenService_RejectsUnknownRole(t *testing.T) {
	_, _, err := newService(t).Issue("ops-7", auth.Role("admin"))
	assert.ErrorIs(t, err, auth.ErrInvalidRole)
}

func TestTokenService_InvalidTokens(t *testing.T) {
	svc := newService(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestTokenService_Mismatches(t *testing.T) {
	issuer := newService(t)
	token, _, err := issuer.Issue("ops-7", auth.RoleViewer)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*auth.TokenConfig)
	}{
		{"signing key", func(c *auth.TokenConfig) { c.SigningKey = "other-key" }},
		{"issuer", func(c *auth.TokenConfig) { c.Issuer = "elsewhere" }},
		{"audience", func(c *auth.TokenConfig) { c.Audience = "other-api" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(t, tt.mutate).Validate(token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestTokenService_Expired(t *testing.T) {
	now := time.Now()
	past := newService(t, func(c *auth.TokenConfig) {
		c.Clock = func() time.Time { return now.Add(-2 * time.Hour) }
	})
	token, _, err := past.Issue("ops-7", auth.RoleOperator)
	require.NoError(t, err)

	_, err = newService(t).Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestRole_Allows(t *testing.T) {
	assert.True(t, auth.RoleOperator.Allows(auth.RoleViewer))
	assert.True(t, auth.RoleOperator.Allows(auth.RoleOperator))
	assert.True(t, auth.RoleViewer.Allows(auth.RoleViewer))
	assert.False(t, auth.RoleViewer.Allows(auth.RoleOperator))
	assert.False(t, auth.Role("").Allows(auth.RoleViewer))
}
