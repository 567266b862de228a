// Package auth reads the bearer token issued by the CRM.
// The client never verifies signatures: the server does. The token is only
// opened to learn who the local user is.
package auth

import (
	"crm-chat/domain"
	"crm-chat/errors"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims is what the CRM puts in its tokens.
// Some deployments carry the user id in "user_id", others only in "sub".
type CustomClaims struct {
	UserID json.Number `json:"user_id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Email  string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Credentials struct {
	Token     string
	UserID    domain.UserID
	Name      string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the token has an expiry in the past.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ParseCredentials opens the token without verifying it.
func ParseCredentials(token string) (Credentials, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Credentials{}, fmt.Errorf("%w: empty token", errors.ErrInvalidToken)
	}

	claims := &CustomClaims{}
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(token, claims); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	userID, err := claimedUserID(claims)
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{
		Token:  token,
		UserID: userID,
		Name:   claims.Name,
		Email:  claims.Email,
	}
	if claims.ExpiresAt != nil {
		creds.ExpiresAt = claims.ExpiresAt.Time
	}
	return creds, nil
}

func claimedUserID(claims *CustomClaims) (domain.UserID, error) {
	raw := claims.UserID.String()
	if raw == "" {
		raw = claims.Subject
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: no numeric user id in token", errors.ErrInvalidToken)
	}
	return domain.UserID(id), nil
}

// TokenSource hands the current token to outgoing requests.
// It is swapped on sign-in and cleared on sign-out.
type TokenSource struct {
	mu    sync.RWMutex
	creds Credentials
}

func NewTokenSource() *TokenSource {
	return &TokenSource{}
}

func (s *TokenSource) Set(creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
}

func (s *TokenSource) Clear() {
	s.Set(Credentials{})
}

func (s *TokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Token
}

func (s *TokenSource) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}
