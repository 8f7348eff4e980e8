package usecase

import "fmt"

// GrantType selects the credential strategy for an authentication request.
type GrantType string

const (
	GrantPassword     GrantType = "Password"
	GrantRefreshToken GrantType = "RefreshToken"
	GrantExternal     GrantType = "External"
	GrantTwoFactor    GrantType = "TwoFactor"
)

// ParseGrantType maps the wire value onto the closed grant enum. Anything
// else is a validation failure, rejected before dispatch.
func ParseGrantType(value string) (GrantType, error) {
	switch GrantType(value) {
	case GrantPassword, GrantRefreshToken, GrantExternal, GrantTwoFactor:
		return GrantType(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedGrantType, value)
	}
}

// Credentials is the union of fields a grant may carry. Which fields are
// required depends on the grant type; the transport layer validates
// presence before dispatch.
type Credentials struct {
	Email            string
	Password         string
	RefreshToken     string
	Provider         string
	AccessToken      string
	VerificationCode string
}
