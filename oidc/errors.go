package oidc

import (
	"errors"
	"fmt"
)

// Well-known OAuth error codes.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeInvalidGrant   = "invalid_grant"
	ErrorCodeAccessDenied   = "access_denied"
)

// Error is an OAuth 2.0 error, either parsed from an error response body or
// carried by the error/error_description parameters of a callback URL.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("oauth error: %s", e.Code)
	}
	return fmt.Sprintf("oauth error: %s: %s", e.Code, e.Description)
}

// IsInvalidGrant reports whether err carries the invalid_grant OAuth error.
// During refresh this is the terminal "refresh token revoked" signal, as
// opposed to a transient transport failure.
func IsInvalidGrant(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Code == ErrorCodeInvalidGrant
}
