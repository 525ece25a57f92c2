package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":           "user-1",
		"email":         "ada@example.com",
		"aud":           "authenticated",
		"iss":           "https://auth.example.com",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{"full_name": "Ada Lovelace"},
	}
}

func TestValidateHMAC(t *testing.T) {
	v := NewHMACValidator(testSecret, "https://auth.example.com", "authenticated")

	principal, err := v.Validate(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.ID)
	assert.Equal(t, "ada@example.com", principal.Email)
	assert.Equal(t, "Ada Lovelace", principal.Name)
	assert.False(t, principal.Anonymous())
	assert.True(t, v.Ready())
}

func TestValidateRejects(t *testing.T) {
	v := NewHMACValidator(testSecret, "https://auth.example.com", "authenticated")

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		key    []byte
	}{
		{name: "wrong secret", mutate: func(jwt.MapClaims) {}, key: []byte("another-secret-another-secret-another")},
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{name: "missing exp", mutate: func(c jwt.MapClaims) { delete(c, "exp") }},
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "anon" }},
		{name: "wrong issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }},
		{name: "missing subject", mutate: func(c jwt.MapClaims) { delete(c, "sub") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(claims)
			key := tt.key
			if key == nil {
				key = []byte(testSecret)
			}
			_, err := v.Validate(context.Background(), signToken(t, jwt.SigningMethodHS256, key, claims))
			assert.Error(t, err)
		})
	}
}

func TestValidateRejectsUnsignedToken(t *testing.T) {
	v := NewHMACValidator(testSecret, "", "")
	token := signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims())
	_, err := v.Validate(context.Background(), token)
	assert.Error(t, err)
}

func TestValidateWithoutIssuerOrAudience(t *testing.T) {
	v := NewHMACValidator(testSecret, "", "")
	claims := validClaims()
	claims["aud"] = "anything"
	principal, err := v.Validate(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims))
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.ID)
}
