package security

import (
	"errors"
	"fmt"
	"time"

	"cookie-auth/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTokenTTL is the fixed lifetime of a session token.
const SessionTokenTTL = 24 * time.Hour

// Claims binds a user id to the registered expiry claims.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption customizes a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithClock overrides the clock used for issuance and verification.
func WithClock(now func() time.Time) IssuerOption {
	return func(ti *TokenIssuer) {
		ti.now = now
	}
}

// NewTokenIssuer creates an issuer for the given signing secret.
func NewTokenIssuer(secret string, opts ...IssuerOption) *TokenIssuer {
	ti := &TokenIssuer{
		secret: []byte(secret),
		ttl:    SessionTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti
}

// Issue signs a token for userID and returns it with its expiry instant.
func (ti *TokenIssuer) Issue(userID string) (string, time.Time, error) {
	issuedAt := ti.now()
	expiresAt := issuedAt.Add(ti.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the bound user id.
// Expired tokens yield domain.ErrTokenExpired; anything else that fails
// yields domain.ErrTokenMalformed.
func (ti *TokenIssuer) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", domain.ErrNotAuthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return ti.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrTokenExpired
		}
		return "", domain.ErrTokenMalformed
	}

	if !token.Valid || claims.UserID == "" {
		return "", domain.ErrTokenMalformed
	}
	return claims.UserID, nil
}
