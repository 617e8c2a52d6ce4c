package authsession

import (
	"fmt"
	"net/url"
	"strings"

	"context"

	"go.uber.org/zap"

	"github.com/authsession/authsession-go/oidc"
	"github.com/authsession/authsession-go/pkce"
)

// Authorize runs an interactive authorization-code attempt: build the
// authorize URL with a fresh PKCE pair, present the browser session,
// exchange the callback code for tokens and persist them.
//
// Only one attempt may run per container; a concurrent call fails with
// ErrFlowInProgress. A dismissed browser session fails with ErrCanceled.
func (c *Container) Authorize(ctx context.Context, opts *AuthorizeOptions) (*AuthResult, error) {
	if opts == nil || opts.RedirectURI == "" {
		return nil, fmt.Errorf("authorize: redirect URI is required")
	}
	if c.webSession == nil {
		return nil, fmt.Errorf("authorize: no web session provider configured")
	}

	flow, err := c.flows.begin(c.namespace)
	if err != nil {
		return nil, err
	}
	logger := c.logger.With(
		zap.String("correlation_id", flow.CorrelationID),
		zap.String("namespace", c.namespace),
	)
	logger.Info("Starting authorize attempt",
		zap.String("redirect_uri", opts.RedirectURI))

	result, err := c.runAuthorizeFlow(ctx, flow, logger, opts)
	c.flows.end(flow, err == nil)

	if err != nil {
		logger.Info("Authorize attempt failed",
			zap.String("flow_state", flow.State.String()),
			zap.Duration("duration", flow.Duration()),
			zap.Error(err))
		return result, err
	}
	logger.Info("Authorize attempt succeeded",
		zap.Duration("duration", flow.Duration()))
	return result, nil
}

func (c *Container) runAuthorizeFlow(ctx context.Context, flow *flowContext, logger *zap.Logger, opts *AuthorizeOptions) (*AuthResult, error) {
	// One PKCE pair per attempt; discarded when the attempt completes.
	verifier, err := pkce.Generate()
	if err != nil {
		return nil, err
	}

	authorizationURL, err := c.buildAuthorizationURL(ctx, opts, verifier)
	if err != nil {
		return nil, err
	}

	c.flows.transition(flow, FlowAwaitingCallback)
	logger.Debug("Presenting authentication session",
		zap.String("callback_scheme", opts.callbackScheme()))

	callbackURL, err := c.webSession.Present(ctx, authorizationURL, opts.callbackScheme())
	if err != nil {
		return nil, err
	}

	c.flows.transition(flow, FlowExchangingCode)
	return c.exchangeCallback(ctx, verifier, callbackURL)
}

// buildAuthorizationURL constructs the provider authorize URL. The query
// parameter set is part of the provider contract and must be reproduced
// exactly.
func (c *Container) buildAuthorizationURL(ctx context.Context, opts *AuthorizeOptions, verifier pkce.Verifier) (string, error) {
	metadata, err := c.apiClient.FetchDiscovery(ctx)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	if c.sessionType == SessionTypeRefreshToken {
		q.Set("response_type", "code")
		q.Set("scope", strings.Join([]string{"openid", "offline_access", FullAccessScope}, " "))
		q.Set("code_challenge_method", pkce.Method)
		q.Set("code_challenge", verifier.Challenge())
	} else {
		q.Set("response_type", "none")
		q.Set("scope", strings.Join([]string{"openid", FullAccessScope}, " "))
	}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", opts.RedirectURI)
	if opts.State != "" {
		q.Set("state", opts.State)
	}
	if opts.Prompt != "" {
		q.Set("prompt", opts.Prompt)
	}
	if opts.LoginHint != "" {
		q.Set("login_hint", opts.LoginHint)
	}
	if len(opts.UILocales) > 0 {
		q.Set("ui_locales", strings.Join(opts.UILocales, " "))
	}

	return metadata.AuthorizationEndpoint + "?" + q.Encode(), nil
}

// exchangeCallback parses the callback URL and completes the attempt. The
// callback state is carried on the result even for OAuth-error failures so
// the caller can correlate the attempt.
func (c *Container) exchangeCallback(ctx context.Context, verifier pkce.Verifier, callbackURL string) (*AuthResult, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse callback URL: %w", err)
	}
	query := parsed.Query()
	state := query.Get("state")

	if errCode := query.Get("error"); errCode != "" {
		return &AuthResult{State: state}, &oidc.Error{
			Code:        errCode,
			Description: query.Get("error_description"),
		}
	}

	if c.sessionType == SessionTypeCookie {
		// No code exchange in cookie mode; the session cookie is already
		// set and user info is fetched unauthenticated.
		info, err := c.apiClient.RequestUserInfo(ctx, "")
		if err != nil {
			return &AuthResult{State: state}, err
		}
		return &AuthResult{State: state, UserInfo: info}, nil
	}

	code := query.Get("code")
	if code == "" {
		return &AuthResult{State: state}, ErrInvalidCallback
	}

	// The redirect URI used for exchange is the callback stripped of query
	// and fragment; it must match what was registered.
	stripped := *parsed
	stripped.RawQuery = ""
	stripped.Fragment = ""

	form := url.Values{
		"grant_type":    {oidc.GrantTypeAuthorizationCode},
		"client_id":     {c.clientID},
		"code":          {code},
		"redirect_uri":  {stripped.String()},
		"code_verifier": {string(verifier)},
	}
	resp, err := c.apiClient.RequestToken(ctx, form)
	if err != nil {
		return &AuthResult{State: state}, err
	}

	info, err := c.apiClient.RequestUserInfo(ctx, resp.AccessToken)
	if err != nil {
		return &AuthResult{State: state}, err
	}

	c.opMu.Lock()
	err = c.persistTokensLocked(resp)
	c.opMu.Unlock()
	if err != nil {
		return &AuthResult{State: state}, err
	}

	return &AuthResult{State: state, UserInfo: info}, nil
}
