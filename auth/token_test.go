package auth

import (
	"crm-chat/domain"
	"crm-chat/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("any-secret"))
	require.NoError(t, err)
	return token
}

func TestParseCredentials_UserIDClaim(t *testing.T) {
	req := require.New(t)
	expires := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	token := sign(t, jwt.MapClaims{
		"user_id": 42,
		"name":    "Ada",
		"email":   "ada@crm.test",
		"exp":     expires.Unix(),
	})

	creds, err := ParseCredentials("Bearer " + token)

	req.NoError(err)
	req.Equal(domain.UserID(42), creds.UserID)
	req.Equal("Ada", creds.Name)
	req.Equal("ada@crm.test", creds.Email)
	req.Equal(token, creds.Token)
	req.True(creds.ExpiresAt.Equal(expires))
	req.False(creds.Expired(expires.Add(-time.Second)))
	req.True(creds.Expired(expires))
}

func TestParseCredentials_SubjectFallback(t *testing.T) {
	req := require.New(t)
	token := sign(t, jwt.RegisteredClaims{Subject: "17"})

	creds, err := ParseCredentials(token)

	req.NoError(err)
	req.Equal(domain.UserID(17), creds.UserID)
	req.True(creds.ExpiresAt.IsZero())
	req.False(creds.Expired(time.Now()))
}

func TestParseCredentials_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", "   "},
		{"garbage", "not-a-jwt"},
		{"no user id", sign(t, jwt.MapClaims{"name": "nobody"})},
		{"non numeric subject", sign(t, jwt.RegisteredClaims{Subject: "abc"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCredentials(tt.token)
			require.ErrorIs(t, err, errors.ErrInvalidToken)
		})
	}
}

func TestTokenSource(t *testing.T) {
	req := require.New(t)
	source := NewTokenSource()
	req.Empty(source.Token())

	source.Set(Credentials{Token: "abc", UserID: 3})
	req.Equal("abc", source.Token())
	req.Equal(domain.UserID(3), source.Credentials().UserID)

	source.Clear()
	req.Empty(source.Token())
}
