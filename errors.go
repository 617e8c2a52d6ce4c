package authsession

import "errors"

// Sentinel errors for consistent handling across the SDK. OAuth wire errors
// are reported as *oidc.Error and matched with errors.As.
var (
	// ErrCanceled indicates the user dismissed the interactive session.
	// UIs should treat this as a non-error outcome and suppress error chrome.
	ErrCanceled = errors.New("authentication session canceled by user")

	// ErrFlowInProgress indicates an interactive authorize attempt is
	// already running on this container.
	ErrFlowInProgress = errors.New("authorization flow already in progress")

	// ErrAnonymousUserNotFound indicates promotion was attempted with no
	// stored anonymous identity for the namespace.
	ErrAnonymousUserNotFound = errors.New("anonymous user not found")

	// ErrInvalidCallback indicates the callback URL carried neither an
	// authorization code nor an OAuth error.
	ErrInvalidCallback = errors.New("invalid callback: missing authorization code")
)
