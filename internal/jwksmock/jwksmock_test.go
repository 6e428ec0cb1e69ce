package jwksmock

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(2048, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return iss
}

func TestSign_VerifiesAgainstJWKS(t *testing.T) {
	iss := newTestIssuer(t)

	tok, err := iss.Sign(TokenRequest{Sub: "user-1", Name: "Ann"})
	require.NoError(t, err)

	kf, err := keyfunc.NewJWKSetJSON(iss.JWKS())
	require.NoError(t, err)

	var c claims
	parsed, err := jwt.ParseWithClaims(tok, &c, kf.Keyfunc, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, "Ann", c.Name)
}

func TestSign_RequiresSubject(t *testing.T) {
	_, err := newTestIssuer(t).Sign(TokenRequest{})
	assert.ErrorIs(t, err, ErrSubjectRequired)
}

func TestSign_NegativeTTLIsExpired(t *testing.T) {
	iss := newTestIssuer(t)
	tok, err := iss.Sign(TokenRequest{Sub: "u", TTLSeconds: -60})
	require.NoError(t, err)

	kf, err := keyfunc.NewJWKSetJSON(iss.JWKS())
	require.NoError(t, err)
	_, err = jwt.ParseWithClaims(tok, &claims{}, kf.Keyfunc)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestHandler(t *testing.T) {
	srv := httptest.NewServer(newTestIssuer(t).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/jwks")
	require.NoError(t, err)
	var jwks jwksResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
	resp.Body.Close()
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, KeyID, jwks.Keys[0].Kid)

	resp, err = http.Post(srv.URL+"/token", "application/json", strings.NewReader(`{"sub":"u-1"}`))
	require.NoError(t, err)
	var tok tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, tok.Token)

	resp, err = http.Post(srv.URL+"/token", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
