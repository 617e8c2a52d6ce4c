package authsession

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authsession/authsession-go/oidc"
	"github.com/authsession/authsession-go/storage"
)

// fakeAPIClient lets each test script the provider's responses. Counters
// record how often each endpoint was hit.
type fakeAPIClient struct {
	mu sync.Mutex

	discoveryFn  func(ctx context.Context) (*oidc.ProviderMetadata, error)
	tokenFn      func(ctx context.Context, form url.Values) (*oidc.TokenResponse, error)
	userInfoFn   func(ctx context.Context, accessToken string) (*oidc.UserInfo, error)
	revocationFn func(ctx context.Context, refreshToken string) error
	challengeFn  func(ctx context.Context, purpose string) (string, error)

	tokenCalls      int
	tokenForms      []url.Values
	revocationCalls int
	revokedTokens   []string
	challengeCalls  int
}

func (f *fakeAPIClient) FetchDiscovery(ctx context.Context) (*oidc.ProviderMetadata, error) {
	if f.discoveryFn != nil {
		return f.discoveryFn(ctx)
	}
	return &oidc.ProviderMetadata{
		Issuer:                "https://provider.test",
		AuthorizationEndpoint: "https://provider.test/oauth2/authorize",
		TokenEndpoint:         "https://provider.test/oauth2/token",
		UserInfoEndpoint:      "https://provider.test/oauth2/userinfo",
		RevocationEndpoint:    "https://provider.test/oauth2/revoke",
	}, nil
}

func (f *fakeAPIClient) RequestToken(ctx context.Context, form url.Values) (*oidc.TokenResponse, error) {
	f.mu.Lock()
	f.tokenCalls++
	f.tokenForms = append(f.tokenForms, form)
	f.mu.Unlock()
	if f.tokenFn != nil {
		return f.tokenFn(ctx, form)
	}
	return &oidc.TokenResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}, nil
}

func (f *fakeAPIClient) RequestUserInfo(ctx context.Context, accessToken string) (*oidc.UserInfo, error) {
	if f.userInfoFn != nil {
		return f.userInfoFn(ctx, accessToken)
	}
	return &oidc.UserInfo{Sub: "user-1"}, nil
}

func (f *fakeAPIClient) RequestRevocation(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	f.revocationCalls++
	f.revokedTokens = append(f.revokedTokens, refreshToken)
	f.mu.Unlock()
	if f.revocationFn != nil {
		return f.revocationFn(ctx, refreshToken)
	}
	return nil
}

func (f *fakeAPIClient) RequestChallenge(ctx context.Context, purpose string) (string, error) {
	f.mu.Lock()
	f.challengeCalls++
	f.mu.Unlock()
	if f.challengeFn != nil {
		return f.challengeFn(ctx, purpose)
	}
	return "challenge-1", nil
}

func (f *fakeAPIClient) lastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokenForms) == 0 {
		return nil
	}
	return f.tokenForms[len(f.tokenForms)-1]
}

// fakeWebSession scripts the browser round trip.
type fakeWebSession struct {
	presentFn func(ctx context.Context, authorizationURL, callbackScheme string) (string, error)

	mu            sync.Mutex
	presentCalls  int
	lastAuthURL   string
	lastScheme    string
	presentedURLs []string
}

func (f *fakeWebSession) Present(ctx context.Context, authorizationURL, callbackScheme string) (string, error) {
	f.mu.Lock()
	f.presentCalls++
	f.lastAuthURL = authorizationURL
	f.lastScheme = callbackScheme
	f.presentedURLs = append(f.presentedURLs, authorizationURL)
	f.mu.Unlock()
	if f.presentFn != nil {
		return f.presentFn(ctx, authorizationURL, callbackScheme)
	}
	return "http://127.0.0.1:53682/callback?code=code-1", nil
}

// fakeDelegate counts session-expired notifications.
type fakeDelegate struct {
	mu      sync.Mutex
	expired int
}

func (f *fakeDelegate) OnSessionExpired() {
	f.mu.Lock()
	f.expired++
	f.mu.Unlock()
}

func (f *fakeDelegate) expiredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expired
}

// fakeKeyStore holds ECDSA keys in memory and signs with raw r||s
// signatures, mirroring the production store's wire behavior.
type fakeKeyStore struct {
	mu   sync.Mutex
	keys map[string]*ecdsa.PrivateKey

	loadCalls     int
	generateCalls int
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: make(map[string]*ecdsa.PrivateKey)}
}

func (f *fakeKeyStore) deviceKey(keyID string, key *ecdsa.PrivateKey) *DeviceKey {
	x := make([]byte, 32)
	y := make([]byte, 32)
	key.PublicKey.X.FillBytes(x)
	key.PublicKey.Y.FillBytes(y)
	return &DeviceKey{
		KeyID: keyID,
		PublicJWK: map[string]any{
			"kid": keyID,
			"kty": "EC",
			"crv": "P-256",
			"alg": "ES256",
			"use": "sig",
			"x":   base64.RawURLEncoding.EncodeToString(x),
			"y":   base64.RawURLEncoding.EncodeToString(y),
		},
	}
}

func (f *fakeKeyStore) LoadKey(keyID string) (*DeviceKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	key, ok := f.keys[keyID]
	if !ok {
		return nil, nil
	}
	return f.deviceKey(keyID, key), nil
}

func (f *fakeKeyStore) GenerateKey(keyID string) (*DeviceKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	f.keys[keyID] = key
	return f.deviceKey(keyID, key), nil
}

func (f *fakeKeyStore) Sign(keyID string, signingInput []byte) ([]byte, error) {
	f.mu.Lock()
	key, ok := f.keys[keyID]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no key for key id %s", keyID)
	}
	digest := sha256.Sum256(signingInput)
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

func (f *fakeKeyStore) verify(keyID string, signingInput, sig []byte) bool {
	f.mu.Lock()
	key, ok := f.keys[keyID]
	f.mu.Unlock()
	if !ok || len(sig) != 64 {
		return false
	}
	digest := sha256.Sum256(signingInput)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(&key.PublicKey, digest[:], r, s)
}

// testEnv bundles a container with the fakes wired into it.
type testEnv struct {
	container *Container
	api       *fakeAPIClient
	web       *fakeWebSession
	storage   *storage.MemoryStore
	keyStore  *fakeKeyStore
	delegate  *fakeDelegate
}

func newTestEnv(t *testing.T, mutate func(cfg *Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		api:      &fakeAPIClient{},
		web:      &fakeWebSession{},
		storage:  storage.NewMemoryStore(),
		keyStore: newFakeKeyStore(),
		delegate: &fakeDelegate{},
	}
	cfg := &Config{
		ClientID:   "client-1",
		Endpoint:   "https://provider.test",
		APIClient:  env.api,
		Storage:    env.storage,
		KeyStore:   env.keyStore,
		WebSession: env.web,
		Delegate:   env.delegate,
	}
	if mutate != nil {
		mutate(cfg)
	}

	container, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	env.container = container
	return env
}
