// Package auth issues the console's session cookie and resolves it back to
// an operator workspace.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the session cookie.
const CookieName = "console_session"

const DefaultSessionTTL = 8 * time.Hour

// Claims represents the session JWT claims. Subject is the operator, ID the
// workspace.
type Claims struct {
	jwt.RegisteredClaims
}

// Session is what the middleware stores on the request.
type Session struct {
	WorkspaceID string
	Operator    string
	ExpiresAt   time.Time
}

// GenerateSessionToken creates a signed JWT naming the workspace and operator.
func GenerateSessionToken(workspaceID, operator, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        workspaceID,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken validates and parses a session JWT.
func ParseSessionToken(tokenStr string, secret string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, fmt.Errorf("invalid session claims")
	}
	s := &Session{WorkspaceID: claims.ID, Operator: claims.Subject}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
