package oauthbridge

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackURLLocalhostDefaultsToHTTP(t *testing.T) {
	u := callbackURL("github", "localhost:7681", "")
	assert.Equal(t, "http://localhost:7681/auth/github/callback", u)
}

func TestCallbackURLHonorsForwardedProto(t *testing.T) {
	u := callbackURL("google", "example.com", "https")
	assert.Equal(t, "https://example.com/auth/google/callback", u)
}

func TestCallbackURLNonLocalDefaultsToHTTPS(t *testing.T) {
	u := callbackURL("github", "example.com", "")
	assert.Equal(t, "https://example.com/auth/github/callback", u)
}

func TestDecodeGoogleIDTokenExtractsSubAndName(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"sub": "1234567890", "name": "Ada Lovelace"})
	idToken := "header." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"

	sub, name, err := decodeGoogleIDToken(idToken)
	require.NoError(t, err)
	assert.Equal(t, "1234567890", sub)
	assert.Equal(t, "Ada Lovelace", name)
}

func TestDecodeGoogleIDTokenFallsBackToEmail(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"sub": "42", "email": "ada@example.com"})
	idToken := "header." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"

	sub, name, err := decodeGoogleIDToken(idToken)
	require.NoError(t, err)
	assert.Equal(t, "42", sub)
	assert.Equal(t, "ada@example.com", name)
}

func TestDecodeGoogleIDTokenMalformedRejected(t *testing.T) {
	_, _, err := decodeGoogleIDToken("not-a-jwt")
	assert.Error(t, err)
}

func TestErrorRedirectEscapesReason(t *testing.T) {
	assert.Equal(t, "/?error=token+exchange+failed", ErrorRedirect("token exchange failed"))
}
