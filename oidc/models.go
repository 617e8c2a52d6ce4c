// Package oidc implements the wire-level client for an OpenID Connect
// provider: discovery, token exchange, user info, revocation and the
// anonymous-challenge endpoint.
package oidc

// Grant types used by the session container.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	// GrantTypeAnonymous is the provider-specific grant that exchanges a
	// signed device-key assertion for tokens without a browser round trip.
	GrantTypeAnonymous = "urn:authsession:params:oauth:grant-type:anonymous-request"
)

// ChallengePurposeAnonymous requests a one-time challenge token for
// anonymous authentication or promotion.
const ChallengePurposeAnonymous = "anonymous_request"

// ProviderMetadata is the subset of the OIDC discovery document the
// container needs.
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
	// ChallengeEndpoint is a provider extension; when absent the client
	// falls back to the conventional /oauth2/challenge path.
	ChallengeEndpoint string `json:"challenge_endpoint,omitempty"`
	JWKSURI           string `json:"jwks_uri,omitempty"`
}

// TokenResponse is a successful response from the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token,omitempty"`
}

// UserInfo is the authenticated end-user as reported by the userinfo
// endpoint.
type UserInfo struct {
	Sub         string `json:"sub"`
	IsAnonymous bool   `json:"https://authsession.io/claims/user/is_anonymous"`
	IsVerified  bool   `json:"https://authsession.io/claims/user/is_verified"`
}

// challengeRequest is the body sent to the challenge endpoint.
type challengeRequest struct {
	Purpose string `json:"purpose"`
}

// challengeResponse is the body returned by the challenge endpoint.
type challengeResponse struct {
	Token string `json:"token"`
}
