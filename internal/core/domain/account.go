package domain

import "time"

// ExternalLogin links an account to an identity held by an OAuth provider.
// The (Provider, ExternalID) pair is unique across the store.
type ExternalLogin struct {
	Provider   string
	ExternalID string
}

// RefreshToken is one entry of an account's rotation history. The opaque
// value itself is never persisted, only its hash.
type RefreshToken struct {
	TokenHash string
	IssuedAt  time.Time
}

// Account mirrors the persisted representation in the accounts table.
// PasswordHash is empty for accounts created purely via external login.
// TwoFactorSecret is set once enrollment completes; a pending enrollment
// secret lives in the enrollment store until then and never here.
type Account struct {
	ID               string
	Email            string
	PasswordHash     string
	FirstName        string
	LastName         string
	Picture          string
	DateOfBirth      *time.Time
	Roles            []string
	IsLockedOut      bool
	TwoFactorEnabled bool
	TwoFactorSecret  string
	ExternalLogins   []ExternalLogin
	CreatedAt        time.Time
}

// HasExternalLogin reports whether the account already carries the given
// provider link.
func (a *Account) HasExternalLogin(provider, externalID string) bool {
	if a == nil {
		return false
	}
	for _, login := range a.ExternalLogins {
		if login.Provider == provider && login.ExternalID == externalID {
			return true
		}
	}
	return false
}

// PasswordResetRequest is the single-use reset code attached to an account,
// stored hashed alongside its expiry.
type PasswordResetRequest struct {
	TokenHash string
	ExpiresAt time.Time
}
