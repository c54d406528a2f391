// ABOUTME: Bearer token inspection without signature verification
// ABOUTME: Reads sub and exp from JWTs so an expired token is reported before any request

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrNoToken      = errors.New("no token configured")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is what the client can learn from a bearer token locally.
type Claims struct {
	// IsJWT is false for opaque tokens, which carry no readable claims.
	IsJWT     bool
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Expired reports whether the token has an expiry at or before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect parses token claims without verifying the signature. The client
// does not hold the signing key, so this is only used to fail fast on
// expired tokens. Tokens that are not three dot-separated segments are
// treated as opaque and accepted.
func Inspect(tokenString string) (Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Claims{}, ErrNoToken
	}
	if strings.Count(tokenString, ".") != 2 {
		return Claims{}, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	out := Claims{IsJWT: true}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: exp: %v", ErrInvalidToken, err)
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out, nil
}

// Check returns ErrExpiredToken when token is a JWT whose exp has passed.
func Check(tokenString string, now time.Time) error {
	claims, err := Inspect(tokenString)
	if err != nil {
		return err
	}
	if claims.Expired(now) {
		return fmt.Errorf("%w at %s", ErrExpiredToken, claims.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
