package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds every request made by the client.
const DefaultRequestTimeout = 30 * time.Second

// Client talks to a single OpenID Connect provider. The discovery document
// is fetched once and cached for the lifetime of the client.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.RWMutex
	metadata *ProviderMetadata
}

// NewClient creates a client for the provider at endpoint (scheme + host,
// no trailing slash required). A nil logger disables logging.
func NewClient(endpoint string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		logger:     logger.Named("oidc-client"),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Intended for tests and
// hosts that need custom transports.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// FetchDiscovery returns the provider's discovery document, fetching it on
// first use and caching it afterwards.
func (c *Client) FetchDiscovery(ctx context.Context) (*ProviderMetadata, error) {
	c.mu.RLock()
	cached := c.metadata
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	metadataURL := c.endpoint + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned %d", resp.StatusCode)
	}

	var metadata ProviderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}

	c.mu.Lock()
	c.metadata = &metadata
	c.mu.Unlock()

	c.logger.Debug("Discovery document cached",
		zap.String("issuer", metadata.Issuer),
		zap.String("token_endpoint", metadata.TokenEndpoint))

	return &metadata, nil
}

// RequestToken posts the given form to the token endpoint and decodes the
// token response. OAuth error bodies are returned as *Error.
func (c *Client) RequestToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	metadata, err := c.FetchDiscovery(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.postForm(ctx, metadata.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &tokenResp, nil
}

// RequestUserInfo fetches the userinfo document. An empty accessToken sends
// an unauthenticated request, which cookie-session providers accept.
func (c *Client) RequestUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	metadata, err := c.FetchDiscovery(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadata.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromBody(resp.StatusCode, raw)
	}

	var info UserInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return &info, nil
}

// RequestRevocation revokes the given refresh token at the provider.
func (c *Client) RequestRevocation(ctx context.Context, refreshToken string) error {
	metadata, err := c.FetchDiscovery(ctx)
	if err != nil {
		return err
	}
	if metadata.RevocationEndpoint == "" {
		return fmt.Errorf("provider does not advertise a revocation endpoint")
	}

	form := url.Values{"token": {refreshToken}}
	_, err = c.postForm(ctx, metadata.RevocationEndpoint, form)
	return err
}

// RequestChallenge obtains a one-time challenge token for the given purpose.
func (c *Client) RequestChallenge(ctx context.Context, purpose string) (string, error) {
	metadata, err := c.FetchDiscovery(ctx)
	if err != nil {
		return "", err
	}

	challengeURL := metadata.ChallengeEndpoint
	if challengeURL == "" {
		challengeURL = c.endpoint + "/oauth2/challenge"
	}

	payload, err := json.Marshal(challengeRequest{Purpose: purpose})
	if err != nil {
		return "", fmt.Errorf("failed to encode challenge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, challengeURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request challenge: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read challenge response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errorFromBody(resp.StatusCode, raw)
	}

	var challenge challengeResponse
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return "", fmt.Errorf("failed to parse challenge response: %w", err)
	}
	if challenge.Token == "" {
		return "", fmt.Errorf("challenge endpoint returned an empty token")
	}
	return challenge.Token, nil
}

// postForm posts a URL-encoded form and returns the response body for 2xx
// statuses. Non-2xx bodies are decoded as OAuth errors where possible.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromBody(resp.StatusCode, raw)
	}
	return raw, nil
}

// errorFromBody converts an error response body into *Error when it carries
// an OAuth error object, or a plain error otherwise.
func errorFromBody(status int, body []byte) error {
	var oauthErr Error
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Code != "" {
		return &oauthErr
	}
	return fmt.Errorf("provider returned %d: %s", status, strings.TrimSpace(string(body)))
}
