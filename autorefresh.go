package authsession

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/authsession/authsession-go/oidc"
)

// autoRefreshThreshold is the fraction of token lifetime after which a
// proactive refresh fires.
const autoRefreshThreshold = 0.8

// minAutoRefreshDelay prevents hot refresh loops on very short-lived
// tokens.
const minAutoRefreshDelay = 5 * time.Second

// scheduleAutoRefresh arms a one-shot timer that refreshes the session at
// autoRefreshThreshold of the token lifetime. A failed proactive refresh is
// only logged; the session falls back to on-demand refresh.
func (c *Container) scheduleAutoRefresh(expireAt time.Time) {
	if !c.autoRefresh {
		return
	}

	lifetime := expireAt.Sub(c.now())
	if lifetime <= 0 {
		return
	}
	delay := time.Duration(float64(lifetime) * autoRefreshThreshold)
	if delay < minAutoRefreshDelay {
		delay = minAutoRefreshDelay
	}

	c.stateMu.Lock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	c.refreshTimer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), oidc.DefaultRequestTimeout)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("Proactive token refresh failed, falling back to on-demand refresh",
				zap.Error(err))
		}
	})
	c.stateMu.Unlock()

	c.logger.Debug("Proactive token refresh scheduled",
		zap.Time("expire_at", expireAt),
		zap.Duration("delay", delay))
}

// stopAutoRefresh cancels any scheduled proactive refresh.
func (c *Container) stopAutoRefresh() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}
