// Package auth issues and validates operator tokens for the traffic API.
//
// Tokens are short-lived HS256 JWTs carrying the operator id and role.
// Read endpoints are public; endpoints that change center state require a
// token with RoleOperator.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenExpiry is used when TokenConfig.Expiry is zero.
const DefaultTokenExpiry = time.Hour

// Role is an operator's permission level.
type Role string

const (
	// RoleViewer may read status and traffic.
	RoleViewer Role = "viewer"
	// RoleOperator may also admit, remove and update vehicles.
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleOperator
}

// Allows reports whether r satisfies the required role.
func (r Role) Allows(required Role) bool {
	if required == RoleViewer {
		return r.Valid()
	}
	return r == required
}

// Predefined token errors.
var (
	ErrInvalidToken  = errors.New("invalid access token")
	ErrTokenExpired  = errors.New("access token has expired")
	ErrMissingSecret = errors.New("signing key is required")
	ErrInvalidRole   = errors.New("invalid role")
)

// Claims are the claims carried in operator tokens.
type Claims struct {
	jwt.RegisteredClaims

	OperatorID string `json:"oid"`
	Role       Role   `json:"role"`
}

// TokenConfig holds configuration for the token service.
type TokenConfig struct {
	// SigningKey is the HMAC secret.
	SigningKey string

	// Issuer is the iss claim (e.g. "utm-center").
	Issuer string

	// Audience is the aud claim (e.g. "utm-api").
	Audience string

	// Expiry is the token lifetime. Default: 1 hour.
	Expiry time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time
}

// TokenService creates and validates operator tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSecret
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTokenExpiry
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     cfg.Expiry,
		now:        cfg.Clock,
	}, nil
}

// Issue signs a token for the operator.
func (s *TokenService) Issue(operatorID string, role Role) (string, time.Time, error) {
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   operatorID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		OperatorID: operatorID,
		Role:       role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
