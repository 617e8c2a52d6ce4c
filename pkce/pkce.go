// Package pkce implements the Proof Key for Code Exchange scheme (RFC 7636)
// used to bind an authorization code to the client that requested it.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Method is the code_challenge_method value sent alongside the challenge.
// Only S256 is supported; the plain method is forbidden by OAuth 2.1.
const Method = "S256"

// verifierEntropy is the number of random bytes in a generated verifier.
// 32 bytes encode to a 43-character verifier, the RFC 7636 minimum.
const verifierEntropy = 32

// Verifier is a PKCE code verifier. It must only ever be transmitted in the
// final token-exchange request; the authorize URL carries the challenge.
type Verifier string

// Generate returns a new cryptographically random code verifier.
func Generate() (Verifier, error) {
	buf := make([]byte, verifierEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return Verifier(base64.RawURLEncoding.EncodeToString(buf)), nil
}

// Challenge derives the S256 code challenge for the verifier:
// base64url(SHA-256(verifier)) without padding.
func (v Verifier) Challenge() string {
	sum := sha256.Sum256([]byte(v))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
