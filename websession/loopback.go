// Package websession implements the interactive authentication session for
// hosts without an embedded web view: the authorize URL is opened in the
// system browser and the redirect is served on a local loopback listener.
package websession

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	authsession "github.com/authsession/authsession-go"
)

// successPage is shown in the browser once the callback has been captured.
const successPage = `<html>
	<body>
		<h1>Authorization Complete</h1>
		<p>You can close this window and return to the application.</p>
		<script>setTimeout(function() { window.close(); }, 2000);</script>
	</body>
</html>`

// LoopbackProvider implements authsession.WebSessionProvider for http and
// https redirect URIs. It listens on the exact host and port of the
// registered redirect URI, opens the system browser and resolves with the
// full callback URL. Context cancellation is the user-cancel path and
// resolves with authsession.ErrCanceled.
type LoopbackProvider struct {
	logger *zap.Logger

	// openURL launches the browser; replaceable in tests.
	openURL func(string) error
}

// NewLoopbackProvider creates a loopback web session provider. A nil logger
// disables logging.
func NewLoopbackProvider(logger *zap.Logger) *LoopbackProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopbackProvider{
		logger:  logger.Named("web-session"),
		openURL: OpenBrowser,
	}
}

// Present serves the redirect URI embedded in authorizationURL, opens the
// browser and waits for a single callback request.
func (p *LoopbackProvider) Present(ctx context.Context, authorizationURL, callbackScheme string) (string, error) {
	if callbackScheme != "http" && callbackScheme != "https" {
		return "", fmt.Errorf("web session: callback scheme %q is not supported by the loopback provider", callbackScheme)
	}

	parsed, err := url.Parse(authorizationURL)
	if err != nil {
		return "", fmt.Errorf("web session: failed to parse authorization URL: %w", err)
	}
	redirectURI := parsed.Query().Get("redirect_uri")
	if redirectURI == "" {
		return "", fmt.Errorf("web session: authorization URL carries no redirect_uri")
	}
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("web session: failed to parse redirect URI: %w", err)
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("web session: failed to listen on %s: %w", redirect.Host, err)
	}

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	callbackCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(successPage)); err != nil {
			p.logger.Error("Failed to write callback response", zap.Error(err))
		}

		callback := *redirect
		callback.RawQuery = r.URL.RawQuery
		select {
		case callbackCh <- callback.String():
		default:
			p.logger.Warn("Duplicate callback request dropped")
		}
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			p.logger.Error("Callback server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	p.logger.Info("Waiting for authorization callback",
		zap.String("listen", redirect.Host),
		zap.String("path", callbackPath))

	if err := p.openURL(authorizationURL); err != nil {
		// Not fatal: the user can copy the URL into a browser manually.
		p.logger.Warn("Failed to open browser, open the URL manually",
			zap.String("url", authorizationURL),
			zap.Error(err))
	}

	select {
	case callback := <-callbackCh:
		return callback, nil
	case <-ctx.Done():
		return "", authsession.ErrCanceled
	}
}
