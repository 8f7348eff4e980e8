package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/core/port"
	"github.com/arklim/identity-token-service/internal/infra/config"
	"github.com/arklim/identity-token-service/internal/infra/security"
	"github.com/arklim/identity-token-service/internal/repository"
)

const resetCodeByteLength = 32

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrExternalLoginTaken indicates the external identity is already
	// linked to an account.
	ErrExternalLoginTaken = errors.New("external login already linked")
	// ErrInvalidResetCode indicates the password reset code is unknown,
	// already used, or expired.
	ErrInvalidResetCode = errors.New("invalid or expired reset code")
)

// defaultRole is granted to every newly registered account.
const defaultRole = "user"

// RegisterInput carries the fields of a password registration.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Picture     string
	DateOfBirth *time.Time
}

// ExternalRegisterInput carries the fields of a provider-linked
// registration. The access token proves control of the external identity.
type ExternalRegisterInput struct {
	Provider    string
	AccessToken string
	Email       string
	FirstName   string
	LastName    string
	Picture     string
	DateOfBirth *time.Time
}

// AccountService covers registration and password recovery.
type AccountService struct {
	cfg       *config.AppConfig
	accounts  port.AccountRepository
	resolvers port.IdentityResolverRegistry
	events    port.EventPublisher
	notifier  port.Notifier
	validator *security.PasswordValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccountService constructs an AccountService instance.
func NewAccountService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	resolvers port.IdentityResolverRegistry,
	events port.EventPublisher,
	notifier port.Notifier,
	validator *security.PasswordValidator,
	logger *zap.Logger,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}

	service := &AccountService{
		cfg:       cfg,
		accounts:  accounts,
		resolvers: resolvers,
		events:    events,
		notifier:  notifier,
		validator: validator,
		logger:    logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *AccountService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RegisterWithPassword creates a password-holding account.
func (s *AccountService) RegisterWithPassword(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	if err := s.validator.Validate(input.Password); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(input.Email),
		PasswordHash: hash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Picture:      input.Picture,
		DateOfBirth:  input.DateOfBirth,
		Roles:        []string{defaultRole},
		CreatedAt:    s.now(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.publishRegistered(ctx, account, "password", "")
	return &account, nil
}

// RegisterExternal creates an account linked to an external provider
// identity. The provider token is resolved first so nobody can claim an
// identity they do not control; the created account has no password and
// can only sign in through the provider until one is set via reset.
func (s *AccountService) RegisterExternal(ctx context.Context, input ExternalRegisterInput) (*domain.Account, error) {
	resolver, ok := s.resolvers.Resolver(input.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, input.Provider)
	}

	externalID, err := resolver.Resolve(ctx, input.AccessToken)
	if err != nil {
		if errors.Is(err, port.ErrIdentityNotResolved) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolve external identity: %w", err)
	}

	if _, err := s.accounts.GetByExternalLogin(ctx, input.Provider, externalID); err == nil {
		return nil, ErrExternalLoginTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup external login: %w", err)
	}

	account := domain.Account{
		ID:          uuid.NewString(),
		Email:       normalizeEmail(input.Email),
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Picture:     input.Picture,
		DateOfBirth: input.DateOfBirth,
		Roles:       []string{defaultRole},
		ExternalLogins: []domain.ExternalLogin{
			{Provider: input.Provider, ExternalID: externalID},
		},
		CreatedAt: s.now(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.publishRegistered(ctx, account, "external", input.Provider)
	return &account, nil
}

// ForgotPassword issues a single-use reset code and hands it to the
// notifier. Unknown emails return success so the endpoint cannot be used
// to probe for registered addresses.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	code, err := security.GenerateSecureToken(resetCodeByteLength)
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}

	request := domain.PasswordResetRequest{
		TokenHash: security.HashToken(code),
		ExpiresAt: s.now().Add(s.cfg.JWT.ResetTokenTTL),
	}
	if err := s.accounts.SetPasswordResetRequest(ctx, account.ID, request); err != nil {
		return fmt.Errorf("store reset request: %w", err)
	}

	if err := s.notifier.SendPasswordResetCode(ctx, account.Email, code); err != nil {
		return fmt.Errorf("send reset code: %w", err)
	}
	return nil
}

// ResetPassword redeems a reset code for a new password. Success also
// clears two-factor enrollment: a reset is the documented recovery path
// for a lost authenticator.
func (s *AccountService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetCode
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	request, err := s.accounts.GetPasswordResetRequest(ctx, account.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetCode
		}
		return fmt.Errorf("lookup reset request: %w", err)
	}

	supplied := security.HashToken(code)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(request.TokenHash)) != 1 {
		return ErrInvalidResetCode
	}
	if s.now().After(request.ExpiresAt) {
		return ErrInvalidResetCode
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.accounts.ResetPassword(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (s *AccountService) publishRegistered(ctx context.Context, account domain.Account, method, provider string) {
	if s.events == nil {
		return
	}

	event := domain.AccountRegisteredEvent{
		EventID:      uuid.NewString(),
		AccountID:    account.ID,
		Email:        account.Email,
		Method:       method,
		Provider:     provider,
		RegisteredAt: s.now(),
	}
	if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
		s.logger.Warn("publish account registered event", zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
