// Package session mints and verifies the stateless session credential
// issued after a successful login.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"campus-auth-service/internal/models"
)

var (
	ErrInvalidInput = errors.New("invalid session input")
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims carried by the session token. Any holder of a correctly signed,
// unexpired token is considered authenticated; no store is consulted.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs session credentials with a fixed expiry horizon. It is
// pure: issuing has no side effects beyond constructing the credential.
type Issuer struct {
	signingKey []byte
	ttl        time.Duration

	now func() time.Time
}

func NewIssuer(signingKey string, ttl time.Duration) *Issuer {
	return &Issuer{
		signingKey: []byte(signingKey),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue mints a session credential for userID with the given role. Fails
// only on structurally invalid input.
func (i *Issuer) Issue(userID, role string) (*models.SessionCredential, error) {
	if userID == "" || role == "" {
		return nil, fmt.Errorf("%w: user id and role are required", ErrInvalidInput)
	}

	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.ttl)

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &models.SessionCredential{
		Token:     signed,
		UserID:    userID,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse validates signature and expiry and returns the claims.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
