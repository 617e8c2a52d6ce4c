package authsession

import (
	"context"
	"net/url"

	"github.com/authsession/authsession-go/oidc"
)

// WebSessionProvider presents the interactive authentication session (the
// system browser or an embedded web view) and resolves with the callback
// URL the provider redirected to.
//
// Implementations must return ErrCanceled when the user dismisses the
// session; any other fault is an opaque transport error.
type WebSessionProvider interface {
	Present(ctx context.Context, authorizationURL, callbackScheme string) (callbackURL string, err error)
}

// SessionStorage durably stores per-namespace session secrets. Lookups for
// missing values return ("", nil). Implementations own their atomicity
// guarantees per key.
type SessionStorage interface {
	RefreshToken(namespace string) (string, error)
	SetRefreshToken(namespace, token string) error
	DelRefreshToken(namespace string) error

	AnonymousKeyID(namespace string) (string, error)
	SetAnonymousKeyID(namespace, keyID string) error
	DelAnonymousKeyID(namespace string) error
}

// DeviceKey is the public half of a device-bound keypair, exported as a JWK
// for embedding in assertion headers.
type DeviceKey struct {
	KeyID     string
	PublicJWK map[string]any
}

// KeyStore creates, loads and signs with device-bound keypairs. The private
// key never leaves the store, which lets implementations back it with an OS
// keystore, an encrypted file or an HSM.
type KeyStore interface {
	// LoadKey returns the key stored under keyID, or (nil, nil) when no key
	// has been generated yet.
	LoadKey(keyID string) (*DeviceKey, error)
	GenerateKey(keyID string) (*DeviceKey, error)
	// Sign signs the JWS signing input and returns a raw r||s ES256
	// signature.
	Sign(keyID string, signingInput []byte) ([]byte, error)
}

// APIClient is the provider HTTP client: discovery, token exchange, user
// info, revocation and challenge issuance. The oidc package provides the
// production implementation.
type APIClient interface {
	FetchDiscovery(ctx context.Context) (*oidc.ProviderMetadata, error)
	RequestToken(ctx context.Context, form url.Values) (*oidc.TokenResponse, error)
	RequestUserInfo(ctx context.Context, accessToken string) (*oidc.UserInfo, error)
	RequestRevocation(ctx context.Context, refreshToken string) error
	RequestChallenge(ctx context.Context, purpose string) (string, error)
}

// Delegate receives outward notifications from the container.
type Delegate interface {
	// OnSessionExpired fires exactly once per terminal invalid_grant event
	// during refresh, before local state is cleared.
	OnSessionExpired()
}
