package authsession

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/authsession/authsession-go/oidc"
)

// tokenState is the in-memory token triple. It is owned by the container
// and only ever replaced whole: a token exchange result sets all three
// fields atomically, and cleanup zeroes all three.
type tokenState struct {
	accessToken  string
	refreshToken string
	expireAt     time.Time
}

// ShouldRefresh reports whether the access token needs refreshing. Without
// a refresh token there is nothing to refresh. With one, a missing access
// token or expiry means refresh; otherwise refresh once the token is within
// the configured leeway of expiry.
func (c *Container) ShouldRefresh() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.shouldRefreshLocked(c.now())
}

func (c *Container) shouldRefreshLocked(now time.Time) bool {
	if c.tokens.refreshToken == "" {
		return false
	}
	if c.tokens.accessToken == "" || c.tokens.expireAt.IsZero() {
		return true
	}
	return !now.Before(c.tokens.expireAt.Add(-c.expiryLeeway))
}

// Refresh exchanges the stored refresh token for a fresh token triple.
//
// With no refresh token held this is a clean "already logged out" outcome:
// local state is cleared and nil is returned. A provider invalid_grant is
// terminal: the delegate is notified once, local state is cleared and nil
// is returned since the cleanup fully completed. Any other error leaves
// state untouched and is returned unmodified; retrying is the caller's
// responsibility.
func (c *Container) Refresh(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Container) refreshLocked(ctx context.Context) error {
	c.stateMu.RLock()
	refreshToken := c.tokens.refreshToken
	c.stateMu.RUnlock()

	if refreshToken == "" {
		c.logger.Debug("No refresh token held, treating refresh as logout")
		return c.cleanupSessionLocked()
	}

	form := url.Values{
		"grant_type":    {oidc.GrantTypeRefreshToken},
		"client_id":     {c.clientID},
		"refresh_token": {refreshToken},
	}
	resp, err := c.apiClient.RequestToken(ctx, form)
	if err != nil {
		if oidc.IsInvalidGrant(err) {
			c.logger.Info("Refresh token no longer valid, clearing session",
				zap.String("refresh_token", maskToken(refreshToken)))
			if c.delegate != nil {
				c.delegate.OnSessionExpired()
			}
			return c.cleanupSessionLocked()
		}
		return err
	}

	if err := c.persistTokensLocked(resp); err != nil {
		return err
	}

	c.logger.Debug("Token refresh succeeded",
		zap.Time("expire_at", c.expireAt()))
	return nil
}

// persistTokensLocked installs a token-exchange result: the in-memory
// triple is replaced whole and the refresh token is durably stored for the
// namespace. Must be called with opMu held.
func (c *Container) persistTokensLocked(resp *oidc.TokenResponse) error {
	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		// The provider rotates refresh tokens on every grant in practice;
		// keep the previous one if a response ever omits it.
		c.stateMu.RLock()
		refreshToken = c.tokens.refreshToken
		c.stateMu.RUnlock()
	}

	if err := c.storage.SetRefreshToken(c.namespace, refreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	expireAt := c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	c.stateMu.Lock()
	c.tokens = tokenState{
		accessToken:  resp.AccessToken,
		refreshToken: refreshToken,
		expireAt:     expireAt,
	}
	c.stateMu.Unlock()

	c.scheduleAutoRefresh(expireAt)
	return nil
}

// cleanupSessionLocked clears the in-memory triple and deletes the stored
// refresh token and anonymous key mapping for the namespace. Idempotent.
// Must be called with opMu held.
func (c *Container) cleanupSessionLocked() error {
	c.stopAutoRefresh()

	if err := c.storage.DelRefreshToken(c.namespace); err != nil {
		return fmt.Errorf("failed to delete stored refresh token: %w", err)
	}
	if err := c.storage.DelAnonymousKeyID(c.namespace); err != nil {
		return fmt.Errorf("failed to delete anonymous key id: %w", err)
	}

	c.stateMu.Lock()
	c.tokens = tokenState{}
	c.stateMu.Unlock()
	return nil
}

// AccessToken returns the current access token, or "" when none is held.
func (c *Container) AccessToken() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.tokens.accessToken
}

// SessionState reports whether the container currently holds a session.
func (c *Container) SessionState() SessionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.tokens.accessToken == "" && c.tokens.refreshToken == "" {
		return SessionStateNoSession
	}
	return SessionStateAuthenticated
}

func (c *Container) expireAt() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.tokens.expireAt
}
