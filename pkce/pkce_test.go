package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGenerate(t *testing.T) {
	v, err := Generate()
	require.NoError(t, err)

	// 32 bytes of entropy encode to exactly 43 characters
	assert.Len(t, string(v), 43)

	// Verifier must decode as unpadded URL-safe base64
	raw, err := base64.RawURLEncoding.DecodeString(string(v))
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestGenerate_Unique(t *testing.T) {
	v1, err := Generate()
	require.NoError(t, err)
	v2, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2, "verifiers should be unique per attempt")
}

func TestChallenge(t *testing.T) {
	// RFC 7636 Appendix B test vector
	v := Verifier("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", v.Challenge())
}

func TestChallenge_MatchesSHA256(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v, err := Generate()
		require.NoError(t, err)

		sum := sha256.Sum256([]byte(v))
		want := base64.RawURLEncoding.EncodeToString(sum[:])
		assert.Equal(t, want, v.Challenge())

		// Challenge itself must be URL-safe and unpadded
		_, err = base64.RawURLEncoding.DecodeString(v.Challenge())
		assert.NoError(t, err)
	})
}

func TestChallenge_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[A-Za-z0-9_-]{43,128}`).Draw(t, "verifier")
		v := Verifier(s)
		assert.Equal(t, v.Challenge(), v.Challenge())
	})
}
