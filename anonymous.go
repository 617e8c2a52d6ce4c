package authsession

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authsession/authsession-go/oidc"
)

// anonymousJWTType is the typ header of an anonymous-request assertion.
const anonymousJWTType = "vnd.authsession.anonymous-request"

// loginHintEndpoint carries a promote assertion into an interactive
// authorize attempt.
const loginHintEndpoint = "https://authsession.io/login_hint"

// assertionLifetime bounds how long a signed assertion stays valid.
const assertionLifetime = 5 * time.Minute

// Assertion actions understood by the provider.
const (
	actionAuth    = "auth"
	actionPromote = "promote"
)

// keyStoreSigner adapts the KeyStore to golang-jwt's SigningMethod so the
// device private key never leaves the store.
type keyStoreSigner struct {
	keyStore KeyStore
	keyID    string
}

func (s *keyStoreSigner) Alg() string { return "ES256" }

func (s *keyStoreSigner) Sign(signingString string, _ any) ([]byte, error) {
	return s.keyStore.Sign(s.keyID, []byte(signingString))
}

func (s *keyStoreSigner) Verify(string, []byte, any) error {
	return errors.New("anonymous assertions are verified by the provider")
}

// buildAnonymousAssertion requests a one-time challenge, resolves the
// device key for the namespace (creating one on first use) and returns the
// signed assertion together with the key ID it was signed with.
func (c *Container) buildAnonymousAssertion(ctx context.Context, action string) (assertion, keyID string, err error) {
	if c.keyStore == nil {
		return "", "", fmt.Errorf("anonymous authentication requires a key store")
	}

	challenge, err := c.apiClient.RequestChallenge(ctx, oidc.ChallengePurposeAnonymous)
	if err != nil {
		return "", "", err
	}

	keyID, err = c.storage.AnonymousKeyID(c.namespace)
	if err != nil {
		return "", "", fmt.Errorf("failed to load anonymous key id: %w", err)
	}
	if keyID == "" {
		keyID = uuid.New().String()
	}

	key, err := c.keyStore.LoadKey(keyID)
	if err != nil {
		return "", "", err
	}
	isNewKey := false
	if key == nil {
		key, err = c.keyStore.GenerateKey(keyID)
		if err != nil {
			return "", "", err
		}
		isNewKey = true
	}
	if key == nil || key.PublicJWK == nil {
		// A claimed-successful load or generate without usable key material
		// is an unrecoverable local-state fault.
		return "", "", fmt.Errorf("key store returned no key material for key id %s", keyID)
	}

	now := c.now()
	claims := jwt.MapClaims{
		"challenge": challenge,
		"action":    action,
		"iat":       now.Unix(),
		"exp":       now.Add(assertionLifetime).Unix(),
	}
	token := jwt.NewWithClaims(&keyStoreSigner{keyStore: c.keyStore, keyID: keyID}, claims)
	token.Header["typ"] = anonymousJWTType
	// The embedded public key plus the fresh-key flag let the provider
	// decide whether to trust a first-use key registration.
	token.Header["jwk"] = key.PublicJWK
	token.Header["new"] = isNewKey

	assertion, err = token.SignedString(nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign anonymous assertion: %w", err)
	}

	c.logger.Debug("Built anonymous assertion",
		zap.String("action", action),
		zap.String("key_id", keyID),
		zap.Bool("new_key", isNewKey))
	return assertion, keyID, nil
}

// AuthenticateAnonymously signs in with the device-bound anonymous
// identity, creating it on first use. The same key ID and key material are
// reused across calls within a namespace until promotion succeeds.
func (c *Container) AuthenticateAnonymously(ctx context.Context) (*AuthResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	assertion, keyID, err := c.buildAnonymousAssertion(ctx, actionAuth)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type": {oidc.GrantTypeAnonymous},
		"client_id":  {c.clientID},
		"jwt":        {assertion},
	}
	resp, err := c.apiClient.RequestToken(ctx, form)
	if err != nil {
		return nil, err
	}

	info, err := c.apiClient.RequestUserInfo(ctx, resp.AccessToken)
	if err != nil {
		return nil, err
	}

	if err := c.persistTokensLocked(resp); err != nil {
		return nil, err
	}
	if err := c.storage.SetAnonymousKeyID(c.namespace, keyID); err != nil {
		return nil, fmt.Errorf("failed to store anonymous key id: %w", err)
	}

	c.logger.Info("Anonymous authentication succeeded",
		zap.String("key_id", keyID))
	return &AuthResult{UserInfo: info}, nil
}

// PromoteAnonymousUser links the stored anonymous identity to a permanent
// account via an interactive authorize attempt carrying a promote
// assertion. On success the anonymous key mapping is deleted: the identity
// is fully absorbed into the authenticated account.
func (c *Container) PromoteAnonymousUser(ctx context.Context, opts *AuthorizeOptions) (*AuthResult, error) {
	if opts == nil || opts.RedirectURI == "" {
		return nil, fmt.Errorf("promote: redirect URI is required")
	}

	keyID, err := c.storage.AnonymousKeyID(c.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to load anonymous key id: %w", err)
	}
	if keyID == "" {
		return nil, ErrAnonymousUserNotFound
	}

	assertion, _, err := c.buildAnonymousAssertion(ctx, actionPromote)
	if err != nil {
		return nil, err
	}

	promoteOpts := *opts
	promoteOpts.Prompt = "login"
	promoteOpts.LoginHint = fmt.Sprintf("%s?type=anonymous&jwt=%s",
		loginHintEndpoint, url.QueryEscape(assertion))

	result, err := c.Authorize(ctx, &promoteOpts)
	if err != nil {
		return result, err
	}

	if err := c.storage.DelAnonymousKeyID(c.namespace); err != nil {
		return result, fmt.Errorf("failed to delete anonymous key id: %w", err)
	}

	c.logger.Info("Anonymous user promoted",
		zap.String("key_id", keyID))
	return result, nil
}
