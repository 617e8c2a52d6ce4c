package authsession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authsession/authsession-go/oidc"
)

// decodeAssertion splits a compact JWS into header, claims and the raw
// signature without verifying it.
func decodeAssertion(t *testing.T, assertion string) (header, claims map[string]any, signingInput string, sig []byte) {
	t.Helper()

	parts := strings.Split(assertion, ".")
	require.Len(t, parts, 3)

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(headerJSON, &header))

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(claimsJSON, &claims))

	sig, err = base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	return header, claims, parts[0] + "." + parts[1], sig
}

func TestAuthenticateAnonymouslyFirstUse(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	env.container.now = func() time.Time { return now }

	var assertion string
	env.api.tokenFn = func(_ context.Context, form url.Values) (*oidc.TokenResponse, error) {
		assert.Equal(t, oidc.GrantTypeAnonymous, form.Get("grant_type"))
		assert.Equal(t, "client-1", form.Get("client_id"))
		assertion = form.Get("jwt")
		return &oidc.TokenResponse{
			AccessToken:  "access-anon",
			RefreshToken: "refresh-anon",
			ExpiresIn:    3600,
		}, nil
	}
	env.api.userInfoFn = func(_ context.Context, accessToken string) (*oidc.UserInfo, error) {
		assert.Equal(t, "access-anon", accessToken)
		return &oidc.UserInfo{Sub: "anon-1", IsAnonymous: true}, nil
	}

	result, err := env.container.AuthenticateAnonymously(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anon-1", result.UserInfo.Sub)
	assert.True(t, result.UserInfo.IsAnonymous)

	require.NotEmpty(t, assertion)
	header, claims, signingInput, sig := decodeAssertion(t, assertion)

	assert.Equal(t, "ES256", header["alg"])
	assert.Equal(t, "vnd.authsession.anonymous-request", header["typ"])
	assert.Equal(t, true, header["new"], "first use registers a fresh key")
	jwk, ok := header["jwk"].(map[string]any)
	require.True(t, ok, "header must embed the public JWK")
	assert.Equal(t, "EC", jwk["kty"])
	assert.Equal(t, "P-256", jwk["crv"])
	assert.NotEmpty(t, jwk["x"])
	assert.NotEmpty(t, jwk["y"])

	assert.Equal(t, "challenge-1", claims["challenge"])
	assert.Equal(t, "auth", claims["action"])
	assert.Equal(t, float64(now.Unix()), claims["iat"])
	assert.Equal(t, float64(now.Add(5*time.Minute).Unix()), claims["exp"])

	keyID, err := env.storage.AnonymousKeyID(DefaultNamespace)
	require.NoError(t, err)
	require.NotEmpty(t, keyID, "key ID is stored after a successful login")
	assert.Equal(t, keyID, jwk["kid"])
	assert.True(t, env.keyStore.verify(keyID, []byte(signingInput), sig),
		"signature must verify against the device public key")

	assert.Equal(t, "access-anon", env.container.AccessToken())
	stored, _ := env.storage.RefreshToken(DefaultNamespace)
	assert.Equal(t, "refresh-anon", stored)
}

func TestAuthenticateAnonymouslyReusesDeviceKey(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.container.AuthenticateAnonymously(context.Background())
	require.NoError(t, err)
	firstKeyID, err := env.storage.AnonymousKeyID(DefaultNamespace)
	require.NoError(t, err)

	var assertion string
	env.api.tokenFn = func(_ context.Context, form url.Values) (*oidc.TokenResponse, error) {
		assertion = form.Get("jwt")
		return &oidc.TokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresIn: 3600}, nil
	}

	_, err = env.container.AuthenticateAnonymously(context.Background())
	require.NoError(t, err)

	secondKeyID, err := env.storage.AnonymousKeyID(DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, firstKeyID, secondKeyID, "same identity across logins")
	assert.Equal(t, 1, env.keyStore.generateCalls, "the key is generated once and reused")

	header, _, _, _ := decodeAssertion(t, assertion)
	assert.Equal(t, false, header["new"], "reused key is not flagged as new")
	jwk := header["jwk"].(map[string]any)
	assert.Equal(t, firstKeyID, jwk["kid"])
}

func TestAuthenticateAnonymouslyRequiresKeyStore(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.KeyStore = nil
	})

	_, err := env.container.AuthenticateAnonymously(context.Background())
	require.Error(t, err)
	assert.Zero(t, env.api.challengeCalls)
}

func TestAuthenticateAnonymouslyTokenFailureKeepsNoKeyID(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.tokenFn = func(_ context.Context, _ url.Values) (*oidc.TokenResponse, error) {
		return nil, &oidc.Error{Code: oidc.ErrorCodeInvalidRequest}
	}

	_, err := env.container.AuthenticateAnonymously(context.Background())
	require.Error(t, err)

	keyID, _ := env.storage.AnonymousKeyID(DefaultNamespace)
	assert.Empty(t, keyID, "key ID is only stored after the whole login succeeded")
	assert.Equal(t, SessionStateNoSession, env.container.SessionState())
}

func TestPromoteWithoutAnonymousIdentity(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.container.PromoteAnonymousUser(context.Background(), &AuthorizeOptions{
		RedirectURI: "http://127.0.0.1:53682/callback",
	})
	require.ErrorIs(t, err, ErrAnonymousUserNotFound)

	assert.Zero(t, env.api.challengeCalls, "fails before any network traffic")
	assert.Zero(t, env.web.presentCalls)
}

func TestPromoteAnonymousUser(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.container.AuthenticateAnonymously(context.Background())
	require.NoError(t, err)
	keyID, err := env.storage.AnonymousKeyID(DefaultNamespace)
	require.NoError(t, err)

	env.web.presentFn = func(_ context.Context, authorizationURL, _ string) (string, error) {
		parsed, err := url.Parse(authorizationURL)
		require.NoError(t, err)
		q := parsed.Query()

		assert.Equal(t, "login", q.Get("prompt"), "promotion forces a fresh login")

		hint := q.Get("login_hint")
		require.True(t, strings.HasPrefix(hint, "https://authsession.io/login_hint?type=anonymous&jwt="), hint)

		hintURL, err := url.Parse(hint)
		require.NoError(t, err)
		assertion := hintURL.Query().Get("jwt")
		require.NotEmpty(t, assertion)

		header, claims, signingInput, sig := decodeAssertion(t, assertion)
		assert.Equal(t, "promote", claims["action"])
		assert.Equal(t, false, header["new"], "promotion reuses the existing key")
		assert.True(t, env.keyStore.verify(keyID, []byte(signingInput), sig))

		return "http://127.0.0.1:53682/callback?code=code-promote", nil
	}
	env.api.tokenFn = func(_ context.Context, form url.Values) (*oidc.TokenResponse, error) {
		if form.Get("grant_type") == oidc.GrantTypeAuthorizationCode {
			assert.Equal(t, "code-promote", form.Get("code"))
		}
		return &oidc.TokenResponse{AccessToken: "access-promoted", RefreshToken: "refresh-promoted", ExpiresIn: 3600}, nil
	}
	env.api.userInfoFn = func(_ context.Context, _ string) (*oidc.UserInfo, error) {
		return &oidc.UserInfo{Sub: "user-promoted", IsVerified: true}, nil
	}

	result, err := env.container.PromoteAnonymousUser(context.Background(), &AuthorizeOptions{
		RedirectURI: "http://127.0.0.1:53682/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-promoted", result.UserInfo.Sub)

	remaining, err := env.storage.AnonymousKeyID(DefaultNamespace)
	require.NoError(t, err)
	assert.Empty(t, remaining, "anonymous identity is retired after promotion")
}

func TestPromoteFailureKeepsAnonymousIdentity(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.container.AuthenticateAnonymously(context.Background())
	require.NoError(t, err)
	keyID, err := env.storage.AnonymousKeyID(DefaultNamespace)
	require.NoError(t, err)

	env.web.presentFn = func(_ context.Context, _, _ string) (string, error) {
		return "", ErrCanceled
	}

	_, err = env.container.PromoteAnonymousUser(context.Background(), &AuthorizeOptions{
		RedirectURI: "http://127.0.0.1:53682/callback",
	})
	require.ErrorIs(t, err, ErrCanceled)

	remaining, err := env.storage.AnonymousKeyID(DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, keyID, remaining, "a failed promotion must not lose the identity")
}

func TestPromoteDoesNotMutateCallerOptions(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.container.AuthenticateAnonymously(context.Background())
	require.NoError(t, err)

	opts := &AuthorizeOptions{RedirectURI: "http://127.0.0.1:53682/callback"}
	_, err = env.container.PromoteAnonymousUser(context.Background(), opts)
	require.NoError(t, err)

	assert.Empty(t, opts.Prompt)
	assert.Empty(t, opts.LoginHint)
}
