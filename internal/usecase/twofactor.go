package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/core/port"
	"github.com/arklim/identity-token-service/internal/infra/config"
	"github.com/arklim/identity-token-service/internal/infra/security"
	"github.com/arklim/identity-token-service/internal/repository"
)

var (
	// ErrTwoFactorAlreadyEnabled indicates enrollment was attempted on an
	// account that already has a verified authenticator.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotEnabled indicates a disable was attempted without an
	// enrolled authenticator.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrNoPendingEnrollment indicates no setup is in progress, or the
	// pending secret expired before it was verified.
	ErrNoPendingEnrollment = errors.New("no pending two-factor enrollment")
	// ErrInvalidVerificationCode indicates the one-time code did not match.
	ErrInvalidVerificationCode = errors.New("invalid verification code")
)

// TwoFactorEnrollment is handed to the caller after setup so the secret can
// be loaded into an authenticator app.
type TwoFactorEnrollment struct {
	Secret       string
	ProvisionURI string
}

// TwoFactorService manages authenticator enrollment. A generated secret
// stays pending in a volatile store and only lands on the account once the
// owner proves possession with a valid code.
type TwoFactorService struct {
	cfg        *config.AppConfig
	accounts   port.AccountRepository
	enrollment port.TwoFactorEnrollmentStore
	logger     *zap.Logger
	now        func() time.Time
}

// NewTwoFactorService constructs a TwoFactorService instance.
func NewTwoFactorService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	enrollment port.TwoFactorEnrollmentStore,
	logger *zap.Logger,
) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &TwoFactorService{
		cfg:        cfg,
		accounts:   accounts,
		enrollment: enrollment,
		logger:     logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *TwoFactorService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Setup starts an enrollment by generating a fresh secret. Repeating the
// call before verification replaces the pending secret; the enrolled one,
// if any, blocks setup entirely.
func (s *TwoFactorService) Setup(ctx context.Context, accountID string) (*TwoFactorEnrollment, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, err := security.GenerateTwoFactorSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	if err := s.enrollment.Store(ctx, account.ID, secret, s.cfg.Redis.EnrollmentTTL); err != nil {
		return nil, fmt.Errorf("store pending enrollment: %w", err)
	}

	return &TwoFactorEnrollment{
		Secret:       secret,
		ProvisionURI: security.ProvisionURI(secret, s.cfg.App.Name, account.Email),
	}, nil
}

// Enable completes the enrollment started by Setup. The code is verified
// against the pending secret, never the enrolled one.
func (s *TwoFactorService) Enable(ctx context.Context, accountID, code string) error {
	secret, err := s.enrollment.Fetch(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoPendingEnrollment
		}
		return fmt.Errorf("fetch pending enrollment: %w", err)
	}

	ok, err := security.VerifyTOTP(secret, code, s.now())
	if err != nil {
		return fmt.Errorf("verify one-time code: %w", err)
	}
	if !ok {
		return ErrInvalidVerificationCode
	}

	if err := s.accounts.EnableTwoFactor(ctx, accountID, secret); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}

	if err := s.enrollment.Delete(ctx, accountID); err != nil {
		// The pending secret expires on its own; failing the request over
		// cleanup would roll back a completed enrollment.
		s.logger.Warn("delete pending enrollment", zap.Error(err))
	}
	return nil
}

// Disable turns the authenticator off. A valid current code is required so
// a hijacked session cannot silently weaken the account.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, code string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if !account.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	ok, err := security.VerifyTOTP(account.TwoFactorSecret, code, s.now())
	if err != nil {
		return fmt.Errorf("verify one-time code: %w", err)
	}
	if !ok {
		return ErrInvalidVerificationCode
	}

	if err := s.accounts.DisableTwoFactor(ctx, accountID); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	return nil
}
