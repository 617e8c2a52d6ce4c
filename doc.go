// Package authsession drives an OAuth2/PKCE authorization-code flow against
// an OpenID Connect provider and manages the resulting token lifecycle:
// issuance, refresh, expiry and revocation. It also supports a device-bound
// anonymous identity that can later be promoted to a permanent account via a
// signed JWT assertion.
//
// The Container is the entry point. External capabilities (the interactive
// browser session, secure session storage, the device key store and the
// provider HTTP client) are injected as interfaces; default implementations
// live in the websession, storage, keystore and oidc packages.
package authsession
