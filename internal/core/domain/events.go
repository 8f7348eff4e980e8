package domain

import "time"

// AccountRegisteredEvent is published when a new account is created, either
// with a password or pre-linked to an external provider.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Email        string
	Method       string // "password" or "external"
	Provider     string
	RegisteredAt time.Time
}

// LoginSucceededEvent is published when a grant resolves an account and a
// token pair is minted.
type LoginSucceededEvent struct {
	EventID   string
	AccountID string
	GrantType string
	LoginAt   time.Time
}

// TokenRefreshedEvent is published when a refresh token is consumed and
// replaced.
type TokenRefreshedEvent struct {
	EventID     string
	AccountID   string
	RefreshedAt time.Time
}

// LockoutRejectedEvent is published when an otherwise valid credential is
// rejected because the account is administratively locked out.
type LockoutRejectedEvent struct {
	EventID    string
	AccountID  string
	GrantType  string
	RejectedAt time.Time
}
