package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAdmin is the only role the console issues.
const RoleAdmin = "admin"

const (
	defaultTokenTTL = 60 * time.Minute
	issuer          = "ems-console"
)

// Claims are the JWT claims of a console access token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Token is a signed access token and its expiry.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IssueToken signs an HS256 access token for username.
// A non-positive ttl falls back to one hour.
func IssueToken(username, secret string, ttl time.Duration) (Token, error) {
	if secret == "" {
		return Token{}, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	expires := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Role: RoleAdmin,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return Token{}, fmt.Errorf("signing access token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresAt: expires.UTC()}, nil
}

// ParseToken verifies signature, algorithm, issuer and expiry and returns the claims.
func ParseToken(raw, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}
