package authsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/authsession/authsession-go/oidc"
	"github.com/authsession/authsession-go/storage"
)

// DefaultNamespace keys storage when no namespace is configured.
const DefaultNamespace = "default"

// DefaultExpiryLeeway refreshes the access token once it is within this
// window of expiry. The reference behavior refreshed exactly at expiry;
// the leeway is a deliberate improvement against clock skew.
const DefaultExpiryLeeway = 30 * time.Second

// Config configures a Container.
type Config struct {
	// ClientID is the registered OAuth client ID. Required.
	ClientID string
	// Endpoint is the provider origin, e.g. "https://accounts.example.com".
	// Required.
	Endpoint string
	// Namespace distinguishes independent token stores when multiple
	// containers coexist in one process. Defaults to DefaultNamespace.
	Namespace string
	// SessionType defaults to SessionTypeRefreshToken.
	SessionType SessionType
	// ExpiryLeeway overrides DefaultExpiryLeeway. Negative restores the
	// literal refresh-at-expiry behavior.
	ExpiryLeeway time.Duration
	// AutoRefresh proactively refreshes tokens in the background at 80% of
	// their lifetime instead of waiting for on-demand refresh.
	AutoRefresh bool

	// APIClient defaults to oidc.NewClient(Endpoint, Logger).
	APIClient APIClient
	// Storage defaults to an in-memory store; sessions then do not survive
	// a restart. Production hosts should pass storage.NewKeyringStore or
	// storage.NewBoltStore.
	Storage SessionStorage
	// KeyStore is required for anonymous authentication and promotion.
	KeyStore KeyStore
	// WebSession is required for interactive authorize attempts.
	WebSession WebSessionProvider
	// Delegate receives session-expired notifications. Optional.
	Delegate Delegate
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Container is the session façade: it coordinates the authorize flow, the
// anonymous assertion protocol and the token lifecycle for one namespace.
//
// All mutating operations are serialized per container; interactive
// authorize attempts are additionally limited to one at a time. Methods are
// safe for concurrent use and block only the calling goroutine.
type Container struct {
	clientID     string
	endpoint     string
	namespace    string
	sessionType  SessionType
	expiryLeeway time.Duration
	autoRefresh  bool

	apiClient  APIClient
	storage    SessionStorage
	keyStore   KeyStore
	webSession WebSessionProvider
	delegate   Delegate
	logger     *zap.Logger

	// opMu serializes mutating operations; stateMu guards field reads.
	opMu    sync.Mutex
	stateMu sync.RWMutex
	tokens  tokenState

	flows flowGuard

	refreshTimer *time.Timer

	// now is a test hook.
	now func() time.Time
}

// New creates a Container from cfg.
func New(cfg *Config) (*Container, error) {
	if cfg == nil || cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("authsession")

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	sessionType := cfg.SessionType
	if sessionType == "" {
		sessionType = SessionTypeRefreshToken
	}
	leeway := cfg.ExpiryLeeway
	switch {
	case leeway == 0:
		leeway = DefaultExpiryLeeway
	case leeway < 0:
		leeway = 0
	}

	apiClient := cfg.APIClient
	if apiClient == nil {
		apiClient = oidc.NewClient(cfg.Endpoint, logger)
	}
	sessionStorage := cfg.Storage
	if sessionStorage == nil {
		sessionStorage = storage.NewMemoryStore()
	}

	return &Container{
		clientID:     cfg.ClientID,
		endpoint:     cfg.Endpoint,
		namespace:    namespace,
		sessionType:  sessionType,
		expiryLeeway: leeway,
		autoRefresh:  cfg.AutoRefresh,
		apiClient:    apiClient,
		storage:      sessionStorage,
		keyStore:     cfg.KeyStore,
		webSession:   cfg.WebSession,
		delegate:     cfg.Delegate,
		logger:       logger.With(zap.String("namespace", namespace)),
		now:          time.Now,
	}, nil
}

// Configure loads any previously stored refresh token for the namespace and
// refreshes the session when a refresh is due. Call it once at startup.
func (c *Container) Configure(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	stored, err := c.storage.RefreshToken(c.namespace)
	if err != nil {
		return fmt.Errorf("failed to load stored refresh token: %w", err)
	}

	c.stateMu.Lock()
	c.tokens = tokenState{refreshToken: stored}
	c.stateMu.Unlock()

	if stored == "" {
		c.logger.Debug("No stored session found")
		return nil
	}

	c.logger.Debug("Restored session from storage",
		zap.String("refresh_token", maskToken(stored)))

	c.stateMu.RLock()
	due := c.shouldRefreshLocked(c.now())
	c.stateMu.RUnlock()
	if due {
		return c.refreshLocked(ctx)
	}
	return nil
}

// Logout ends the session. In refresh-token mode the current refresh token
// is first revoked at the provider (an empty token is still sent; the
// provider rejects it harmlessly). With force false a revocation failure
// aborts the logout and local state is kept; with force true the failure is
// logged and local cleanup proceeds regardless.
func (c *Container) Logout(ctx context.Context, force bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.sessionType == SessionTypeRefreshToken {
		c.stateMu.RLock()
		refreshToken := c.tokens.refreshToken
		c.stateMu.RUnlock()

		if err := c.apiClient.RequestRevocation(ctx, refreshToken); err != nil {
			if !force {
				return fmt.Errorf("failed to revoke refresh token: %w", err)
			}
			c.logger.Warn("Revocation failed, clearing local session anyway",
				zap.Error(err))
		}
	}

	if err := c.cleanupSessionLocked(); err != nil {
		return err
	}
	c.logger.Info("Logged out")
	return nil
}

// Close stops background work. The container must not be used afterwards.
func (c *Container) Close() {
	c.stopAutoRefresh()
}
