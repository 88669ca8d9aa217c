// Package auth issues and checks the bearer tokens used by driver apps.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleDriver     Role = "driver"
	RoleDispatcher Role = "dispatcher"
)

var ErrUnauthorized = errors.New("invalid token")

type Claims struct {
	DriverID string `json:"driver_id"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret must be non-empty")
	}
	return &Issuer{secret: []byte(secret), now: time.Now}, nil
}

func (i *Issuer) MakeToken(driverID string, role Role, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		DriverID: driverID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   driverID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return tok, nil
}

func (i *Issuer) ParseToken(tok string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// ParseTokenFromRequest reads "Authorization: Bearer <token>", falling back
// to the token query parameter for browser websocket clients.
func (i *Issuer) ParseTokenFromRequest(r *http.Request) (*Claims, error) {
	h := r.Header.Get("Authorization")
	if len(h) > len("bearer ") && strings.EqualFold(h[:len("bearer ")], "bearer ") {
		return i.ParseToken(strings.TrimSpace(h[len("bearer "):]))
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return i.ParseToken(tok)
	}
	return nil, ErrUnauthorized
}

// CanActFor reports whether the claims allow acting on driverID's behalf.
func (c *Claims) CanActFor(driverID string) bool {
	return c.Role == RoleDispatcher || (c.Role == RoleDriver && c.DriverID == driverID)
}
