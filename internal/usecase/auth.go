package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/core/port"
	"github.com/arklim/identity-token-service/internal/infra/config"
	"github.com/arklim/identity-token-service/internal/infra/security"
	"github.com/arklim/identity-token-service/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the supplied credentials could not be
	// verified. Unknown account and wrong secret produce this same error so
	// that failure responses never reveal whether an account exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnsupportedGrantType indicates the grant type is not one of the
	// four supported kinds.
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
	// ErrUnsupportedProvider indicates the external provider name has no
	// registered resolver.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrInvalidAccessToken indicates the access token is malformed or its
	// signature failed validation.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
)

// AuthService dispatches grant-type authentication and issues token pairs.
type AuthService struct {
	cfg           *config.AppConfig
	accounts      port.AccountRepository
	refreshTokens port.RefreshTokenRepository
	resolvers     port.IdentityResolverRegistry
	events        port.EventPublisher
	keyProvider   security.KeyProvider
	logger        *zap.Logger
	now           func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	refreshTokens port.RefreshTokenRepository,
	resolvers port.IdentityResolverRegistry,
	events port.EventPublisher,
	keyProvider security.KeyProvider,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &AuthService{
		cfg:           cfg,
		accounts:      accounts,
		refreshTokens: refreshTokens,
		resolvers:     resolvers,
		events:        events,
		keyProvider:   keyProvider,
		logger:        logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Authenticate selects the authenticator matching the grant type and runs
// it against the supplied credentials. The switch is closed over the four
// grant kinds; ParseGrantType guarantees nothing else reaches it, but the
// default arm still rejects rather than falling through.
func (s *AuthService) Authenticate(ctx context.Context, grant GrantType, creds Credentials) (*Outcome, error) {
	switch grant {
	case GrantPassword:
		return s.authenticatePassword(ctx, creds)
	case GrantRefreshToken:
		return s.authenticateRefreshToken(ctx, creds)
	case GrantExternal:
		return s.authenticateExternal(ctx, creds)
	case GrantTwoFactor:
		return s.authenticateTwoFactor(ctx, creds)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGrantType, grant)
	}
}

// authenticatePassword verifies an email/password pair. Existence and
// secret correctness are checked before the lockout flag is so much as
// read: only a correct-password holder ever learns "locked" or "needs a
// second factor".
func (s *AuthService) authenticatePassword(ctx context.Context, creds Credentials) (*Outcome, error) {
	account, err := s.verifyEmailPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}

	if account.IsLockedOut || account.TwoFactorEnabled {
		outcome := &Outcome{
			RequiresTwoFactor: account.TwoFactorEnabled,
			IsLockedOut:       account.IsLockedOut,
		}
		if outcome.Disposition() == DispositionLockedOut {
			s.publishLockoutRejected(ctx, account.ID, GrantPassword)
		}
		return outcome, nil
	}

	return &Outcome{Account: account}, nil
}

// authenticateRefreshToken redeems a refresh token. The redemption is
// single-use: the conditional removal in the store guarantees that of two
// racing redemptions at most one succeeds, and the loser observes the same
// invalid-credentials failure as a forged token.
func (s *AuthService) authenticateRefreshToken(ctx context.Context, creds Credentials) (*Outcome, error) {
	hash := security.HashToken(creds.RefreshToken)

	account, err := s.refreshTokens.GetAccountByToken(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	// Lockout leaves the token unconsumed so the account can resume its
	// session if the lockout is lifted.
	if account.IsLockedOut {
		s.publishLockoutRejected(ctx, account.ID, GrantRefreshToken)
		return &Outcome{IsLockedOut: true}, nil
	}

	if err := s.refreshTokens.Consume(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	// A second factor is never requested here: it was already satisfied
	// when the refresh token was originally issued.
	return &Outcome{Account: account}, nil
}

// authenticateExternal resolves a provider access token to a stable
// external user id and looks up the linked account.
func (s *AuthService) authenticateExternal(ctx context.Context, creds Credentials) (*Outcome, error) {
	resolver, ok := s.resolvers.Resolver(creds.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, creds.Provider)
	}

	externalID, err := resolver.Resolve(ctx, creds.AccessToken)
	if err != nil {
		if errors.Is(err, port.ErrIdentityNotResolved) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolve external identity: %w", err)
	}

	account, err := s.accounts.GetByExternalLogin(ctx, creds.Provider, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The token is genuine but nothing is linked yet; the caller
			// must complete a registration/linking flow.
			return &Outcome{RequiresExternal: true}, nil
		}
		return nil, fmt.Errorf("lookup external login: %w", err)
	}

	if account.IsLockedOut {
		s.publishLockoutRejected(ctx, account.ID, GrantExternal)
		return &Outcome{IsLockedOut: true}, nil
	}

	return &Outcome{Account: account}, nil
}

// authenticateTwoFactor completes the step-up started by a password grant
// that answered with a two-factor challenge. The code is always checked
// against the enrolled secret, never a pending enrollment one, and the
// lockout flag is only consulted after the code verifies.
func (s *AuthService) authenticateTwoFactor(ctx context.Context, creds Credentials) (*Outcome, error) {
	account, err := s.verifyEmailPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}

	verified, err := security.VerifyTOTP(account.TwoFactorSecret, creds.VerificationCode, s.now())
	if err != nil {
		if errors.Is(err, security.ErrMissingSecret) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verify one-time code: %w", err)
	}
	if !verified {
		return nil, ErrInvalidCredentials
	}

	if account.IsLockedOut {
		s.publishLockoutRejected(ctx, account.ID, GrantTwoFactor)
		return &Outcome{IsLockedOut: true}, nil
	}

	return &Outcome{Account: account}, nil
}

func (s *AuthService) verifyEmailPassword(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return account, nil
}

func (s *AuthService) publishLockoutRejected(ctx context.Context, accountID string, grant GrantType) {
	if s.events == nil {
		return
	}

	event := domain.LockoutRejectedEvent{
		EventID:    uuid.NewString(),
		AccountID:  accountID,
		GrantType:  string(grant),
		RejectedAt: s.now(),
	}
	if err := s.events.PublishLockoutRejected(ctx, event); err != nil {
		s.logger.Warn("publish lockout rejected event", zap.Error(err))
	}
}
