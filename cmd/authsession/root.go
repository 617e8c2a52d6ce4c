package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	authsession "github.com/authsession/authsession-go"
	"github.com/authsession/authsession-go/internal/logs"
	"github.com/authsession/authsession-go/keystore"
	"github.com/authsession/authsession-go/storage"
	"github.com/authsession/authsession-go/websession"
)

var rootCmd = &cobra.Command{
	Use:           "authsession",
	Short:         "Manage authentication sessions against an OpenID Connect provider",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("endpoint", "", "Provider origin, e.g. https://accounts.example.com")
	flags.String("client-id", "", "Registered OAuth client ID")
	flags.String("namespace", authsession.DefaultNamespace, "Session namespace")
	flags.String("data-dir", "", "Directory for local session and key databases")
	flags.Bool("use-keyring", true, "Store the refresh token in the OS keyring when available")
	flags.Bool("auto-refresh", false, "Proactively refresh tokens in the background")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Optional rotating log file path")

	viper.SetEnvPrefix("AUTHSESSION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)
}

// app holds the wired container and the resources it owns.
type app struct {
	container *authsession.Container
	logger    *zap.Logger

	boltStore *storage.BoltStore
	keyDriver *keystore.BoltDriver
}

// expiredNotifier surfaces the session-expired signal to the terminal.
type expiredNotifier struct {
	logger *zap.Logger
}

func (n *expiredNotifier) OnSessionExpired() {
	n.logger.Warn("Session expired, please log in again")
}

// newApp wires the SDK from flags and environment.
func newApp() (*app, error) {
	endpoint := viper.GetString("endpoint")
	clientID := viper.GetString("client-id")
	if endpoint == "" || clientID == "" {
		return nil, fmt.Errorf("--endpoint and --client-id are required")
	}

	logger, err := logs.Setup(logs.Config{
		Level: viper.GetString("log-level"),
		File:  viper.GetString("log-file"),
	})
	if err != nil {
		return nil, err
	}

	dataDir := viper.GetString("data-dir")
	if dataDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		dataDir = filepath.Join(configDir, "authsession")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &app{logger: logger}

	var sessionStorage authsession.SessionStorage
	keyringStore := storage.NewKeyringStore("")
	if viper.GetBool("use-keyring") && keyringStore.IsAvailable() {
		sessionStorage = keyringStore
		logger.Debug("Using OS keyring for session storage")
	} else {
		boltStore, err := storage.NewBoltStore(filepath.Join(dataDir, "sessions.db"))
		if err != nil {
			return nil, err
		}
		a.boltStore = boltStore
		sessionStorage = boltStore
		logger.Debug("Using local database for session storage",
			zap.String("data_dir", dataDir))
	}

	keyDriver, err := keystore.NewBoltDriver(filepath.Join(dataDir, "keys.db"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.keyDriver = keyDriver

	container, err := authsession.New(&authsession.Config{
		ClientID:    clientID,
		Endpoint:    endpoint,
		Namespace:   viper.GetString("namespace"),
		AutoRefresh: viper.GetBool("auto-refresh"),
		Storage:     sessionStorage,
		KeyStore:    keystore.New(keyDriver, logger),
		WebSession:  websession.NewLoopbackProvider(logger),
		Delegate:    &expiredNotifier{logger: logger},
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.container = container

	return a, nil
}

// Close releases everything the app owns.
func (a *app) Close() {
	if a.container != nil {
		a.container.Close()
	}
	if a.boltStore != nil {
		_ = a.boltStore.Close()
	}
	if a.keyDriver != nil {
		_ = a.keyDriver.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
