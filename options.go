package authsession

import (
	"strings"

	"github.com/authsession/authsession-go/oidc"
)

// FullAccessScope is the provider's custom scope granting full API access.
const FullAccessScope = "https://authsession.io/scopes/full-access"

// SessionType selects how the container maintains the session with the
// provider.
type SessionType string

const (
	// SessionTypeRefreshToken runs the authorization-code flow with PKCE
	// and offline access; tokens are held by the container.
	SessionTypeRefreshToken SessionType = "refresh_token"
	// SessionTypeCookie runs the provider's no-redirect mode; the session
	// lives in a shared cookie and no code exchange is performed.
	SessionTypeCookie SessionType = "cookie"
)

// AuthorizeOptions configures a single interactive authorize attempt. The
// value is immutable once passed to the container.
type AuthorizeOptions struct {
	// RedirectURI is the registered redirect URI; required.
	RedirectURI string
	// State is echoed back in the callback for attempt correlation.
	State string
	// Prompt is forwarded as the OIDC prompt parameter when set.
	Prompt string
	// LoginHint is forwarded as the login_hint parameter when set.
	LoginHint string
	// UILocales are space-joined into the ui_locales parameter when set.
	UILocales []string
}

// callbackScheme derives the expected callback scheme from the redirect
// URI: the substring before the first colon.
func (o *AuthorizeOptions) callbackScheme() string {
	if i := strings.IndexByte(o.RedirectURI, ':'); i >= 0 {
		return o.RedirectURI[:i]
	}
	return ""
}

// AuthResult is the outcome of a successful authorize or anonymous login.
// On failure paths the container may still return a result carrying the
// callback State so callers can correlate the attempt.
type AuthResult struct {
	State    string
	UserInfo *oidc.UserInfo
}

// SessionState describes whether the container currently holds a session.
type SessionState int

const (
	// SessionStateNoSession means no tokens are held.
	SessionStateNoSession SessionState = iota
	// SessionStateAuthenticated means the container holds a session.
	SessionStateAuthenticated
)

// String returns the string representation of SessionState.
func (s SessionState) String() string {
	switch s {
	case SessionStateNoSession:
		return "no_session"
	case SessionStateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
