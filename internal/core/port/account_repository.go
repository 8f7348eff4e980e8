package port

import (
	"context"
	"time"

	"github.com/arklim/identity-token-service/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts. Lookups
// return repository.ErrNotFound when no row matches; callers are expected
// to fold that into an anti-enumeration outcome themselves.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByExternalLogin(ctx context.Context, provider, externalID string) (*domain.Account, error)

	AddExternalLogin(ctx context.Context, accountID string, login domain.ExternalLogin) error

	// SetPasswordResetRequest stores the hashed single-use reset code.
	SetPasswordResetRequest(ctx context.Context, accountID string, request domain.PasswordResetRequest) error
	GetPasswordResetRequest(ctx context.Context, accountID string) (*domain.PasswordResetRequest, error)
	// ResetPassword replaces the password hash, clears the reset request,
	// and drops two-factor enrollment in one statement.
	ResetPassword(ctx context.Context, accountID, passwordHash string) error

	EnableTwoFactor(ctx context.Context, accountID, secret string) error
	DisableTwoFactor(ctx context.Context, accountID string) error
}

// RefreshTokenRepository manages the per-account rotation history. Tokens
// are keyed by their SHA-256 hash; the opaque value never reaches storage.
type RefreshTokenRepository interface {
	// GetAccountByToken resolves the account owning the token without
	// consuming it. Returns repository.ErrNotFound for unknown tokens.
	GetAccountByToken(ctx context.Context, tokenHash string) (*domain.Account, error)
	// Consume removes exactly this token. The removal is conditional on the
	// token still existing, so concurrent redemptions of one token succeed
	// at most once; the loser gets repository.ErrNotFound.
	Consume(ctx context.Context, tokenHash string) error
	// Append inserts a new token and trims the account's history to the
	// keep newest entries by issue time, within one transaction.
	Append(ctx context.Context, accountID string, token domain.RefreshToken, keep int) error
	ListByAccount(ctx context.Context, accountID string) ([]domain.RefreshToken, error)
}

// TwoFactorEnrollmentStore holds the pending secret of an in-progress
// enrollment until the account owner proves possession with a valid code.
type TwoFactorEnrollmentStore interface {
	Store(ctx context.Context, accountID, secret string, ttl time.Duration) error
	Fetch(ctx context.Context, accountID string) (string, error)
	Delete(ctx context.Context, accountID string) error
}
