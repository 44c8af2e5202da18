package transport

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenStore holds one operator's bearer credentials.
type TokenStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
	expires time.Time
}

// NewTokenStore returns a store seeded with a token pair.
func NewTokenStore(pair TokenPair) *TokenStore {
	ts := &TokenStore{}
	ts.Set(pair)
	return ts
}

// Set replaces both tokens.
func (t *TokenStore) Set(pair TokenPair) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.access = pair.AccessToken
	t.refresh = pair.RefreshToken
	t.expires = tokenExpiry(pair.AccessToken)
}

// Clear forgets both tokens.
func (t *TokenStore) Clear() {
	t.Set(TokenPair{})
}

// Access returns the current access token.
func (t *TokenStore) Access() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.access
}

// Pair returns a copy of both tokens.
func (t *TokenStore) Pair() TokenPair {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TokenPair{AccessToken: t.access, RefreshToken: t.refresh}
}

// ExpiresWithin reports whether the access token has a known expiry that
// falls within d from now.
func (t *TokenStore) ExpiresWithin(d time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.expires.IsZero() {
		return false
	}
	return time.Until(t.expires) < d
}

// Subject returns the sub claim of the access token, if it is a JWT.
func (t *TokenStore) Subject() string {
	claims, ok := unverifiedClaims(t.Access())
	if !ok {
		return ""
	}
	return claims.Subject
}

// tokenExpiry reads exp without verifying the signature.
func tokenExpiry(token string) time.Time {
	claims, ok := unverifiedClaims(token)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func unverifiedClaims(token string) (*jwt.RegisteredClaims, bool) {
	if token == "" {
		return nil, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
