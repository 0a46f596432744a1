package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken indicates that a sign-in was attempted with an empty token.
	ErrMissingToken = errors.New("session: token required")
	// ErrExpiredToken indicates that the supplied token carries an expiry in the past.
	ErrExpiredToken = errors.New("session: token expired")
)

const (
	claimUsername = "username"
)

// tokenDetails is what the client can learn from a token without the signing secret.
// The identity is for display only; the API remains the authority.
type tokenDetails struct {
	identity  string
	expiresAt time.Time
}

// inspectToken decodes JWT claims without verifying the signature. Opaque tokens
// yield empty details.
func inspectToken(token string) tokenDetails {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenDetails{}
	}

	details := tokenDetails{}
	if username, ok := claims[claimUsername].(string); ok {
		details.identity = strings.TrimSpace(username)
	}
	if details.identity == "" {
		if subject, err := claims.GetSubject(); err == nil {
			details.identity = strings.TrimSpace(subject)
		}
	}
	if expiresAt, err := claims.GetExpirationTime(); err == nil && expiresAt != nil {
		details.expiresAt = expiresAt.Time
	}
	return details
}

func (d tokenDetails) expired(now time.Time) bool {
	if d.expiresAt.IsZero() {
		return false
	}
	return !now.Before(d.expiresAt)
}
