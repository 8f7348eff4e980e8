package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base32"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/core/port"
	"github.com/arklim/identity-token-service/internal/infra/config"
	"github.com/arklim/identity-token-service/internal/infra/security"
	"github.com/arklim/identity-token-service/internal/repository"
)

// createTestKeyProvider creates a temporary RSA key pair and key provider for tests
func createTestKeyProvider(t *testing.T) security.KeyProvider {
	t.Helper()

	tmpDir := t.TempDir()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	privateKeyPEM := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	privateKeyFile, err := os.Create(filepath.Join(tmpDir, "test-key.pem"))
	if err != nil {
		t.Fatalf("failed to create private key file: %v", err)
	}
	if err := pem.Encode(privateKeyFile, privateKeyPEM); err != nil {
		t.Fatalf("failed to encode private key: %v", err)
	}
	privateKeyFile.Close()

	keyProvider, err := security.NewFileKeyProvider(tmpDir)
	if err != nil {
		t.Fatalf("failed to create key provider: %v", err)
	}

	return keyProvider
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{
			Name: "identity-token-service",
			Env:  "test",
		},
		JWT: config.JWTSettings{
			AccessTokenTTL:      time.Hour,
			RefreshHistoryLimit: 10,
			ResetTokenTTL:       time.Hour,
		},
		Redis: config.RedisSettings{
			EnrollmentTTL: 10 * time.Minute,
		},
	}
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return hash
}

type stubAccountRepo struct {
	byID       map[string]domain.Account
	byEmail    map[string]string
	byExternal map[string]string
	resets     map[string]domain.PasswordResetRequest
}

func newStubAccountRepo(accounts ...domain.Account) *stubAccountRepo {
	repo := &stubAccountRepo{
		byID:       make(map[string]domain.Account),
		byEmail:    make(map[string]string),
		byExternal: make(map[string]string),
		resets:     make(map[string]domain.PasswordResetRequest),
	}
	for _, account := range accounts {
		repo.add(account)
	}
	return repo
}

func (r *stubAccountRepo) add(account domain.Account) {
	r.byID[account.ID] = account
	r.byEmail[account.Email] = account.ID
	for _, login := range account.ExternalLogins {
		r.byExternal[login.Provider+"/"+login.ExternalID] = account.ID
	}
}

func (r *stubAccountRepo) Create(_ context.Context, account domain.Account) error {
	if _, taken := r.byEmail[account.Email]; taken {
		return repository.ErrDuplicate
	}
	r.add(account)
	return nil
}

func (r *stubAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	if account, ok := r.byID[id]; ok {
		copy := account
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	if id, ok := r.byEmail[email]; ok {
		account := r.byID[id]
		return &account, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) GetByExternalLogin(_ context.Context, provider, externalID string) (*domain.Account, error) {
	if id, ok := r.byExternal[provider+"/"+externalID]; ok {
		account := r.byID[id]
		return &account, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) AddExternalLogin(_ context.Context, accountID string, login domain.ExternalLogin) error {
	account, ok := r.byID[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.ExternalLogins = append(account.ExternalLogins, login)
	r.byID[accountID] = account
	r.byExternal[login.Provider+"/"+login.ExternalID] = accountID
	return nil
}

func (r *stubAccountRepo) SetPasswordResetRequest(_ context.Context, accountID string, request domain.PasswordResetRequest) error {
	if _, ok := r.byID[accountID]; !ok {
		return repository.ErrNotFound
	}
	r.resets[accountID] = request
	return nil
}

func (r *stubAccountRepo) GetPasswordResetRequest(_ context.Context, accountID string) (*domain.PasswordResetRequest, error) {
	if request, ok := r.resets[accountID]; ok {
		copy := request
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) ResetPassword(_ context.Context, accountID, passwordHash string) error {
	account, ok := r.byID[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = passwordHash
	account.TwoFactorEnabled = false
	account.TwoFactorSecret = ""
	r.byID[accountID] = account
	delete(r.resets, accountID)
	return nil
}

func (r *stubAccountRepo) EnableTwoFactor(_ context.Context, accountID, secret string) error {
	account, ok := r.byID[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.TwoFactorEnabled = true
	account.TwoFactorSecret = secret
	r.byID[accountID] = account
	return nil
}

func (r *stubAccountRepo) DisableTwoFactor(_ context.Context, accountID string) error {
	account, ok := r.byID[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.TwoFactorEnabled = false
	account.TwoFactorSecret = ""
	r.byID[accountID] = account
	return nil
}

type appendCall struct {
	accountID string
	token     domain.RefreshToken
	keep      int
}

type stubRefreshRepo struct {
	accounts *stubAccountRepo
	owners   map[string]string
	appends  []appendCall
}

func newStubRefreshRepo(accounts *stubAccountRepo) *stubRefreshRepo {
	return &stubRefreshRepo{
		accounts: accounts,
		owners:   make(map[string]string),
	}
}

func (r *stubRefreshRepo) seed(accountID, rawToken string) {
	r.owners[security.HashToken(rawToken)] = accountID
}

func (r *stubRefreshRepo) GetAccountByToken(ctx context.Context, tokenHash string) (*domain.Account, error) {
	accountID, ok := r.owners[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.accounts.GetByID(ctx, accountID)
}

func (r *stubRefreshRepo) Consume(_ context.Context, tokenHash string) error {
	if _, ok := r.owners[tokenHash]; !ok {
		return repository.ErrNotFound
	}
	delete(r.owners, tokenHash)
	return nil
}

func (r *stubRefreshRepo) Append(_ context.Context, accountID string, token domain.RefreshToken, keep int) error {
	r.owners[token.TokenHash] = accountID
	r.appends = append(r.appends, appendCall{accountID: accountID, token: token, keep: keep})
	return nil
}

func (r *stubRefreshRepo) ListByAccount(_ context.Context, accountID string) ([]domain.RefreshToken, error) {
	var tokens []domain.RefreshToken
	for _, call := range r.appends {
		if call.accountID == accountID {
			tokens = append(tokens, call.token)
		}
	}
	return tokens, nil
}

type stubResolver struct {
	identities map[string]string
	err        error
}

func (r *stubResolver) Resolve(_ context.Context, accessToken string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if id, ok := r.identities[accessToken]; ok {
		return id, nil
	}
	return "", port.ErrIdentityNotResolved
}

type stubRegistry struct {
	resolvers map[string]port.IdentityResolver
}

func (r *stubRegistry) Resolver(provider string) (port.IdentityResolver, bool) {
	resolver, ok := r.resolvers[provider]
	return resolver, ok
}

type recordedEvent struct {
	kind      string
	accountID string
	grantType string
}

type recordingPublisher struct {
	events []recordedEvent
}

func (p *recordingPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.events = append(p.events, recordedEvent{kind: "registered", accountID: event.AccountID})
	return nil
}

func (p *recordingPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.events = append(p.events, recordedEvent{kind: "login", accountID: event.AccountID, grantType: event.GrantType})
	return nil
}

func (p *recordingPublisher) PublishTokenRefreshed(_ context.Context, event domain.TokenRefreshedEvent) error {
	p.events = append(p.events, recordedEvent{kind: "refreshed", accountID: event.AccountID})
	return nil
}

func (p *recordingPublisher) PublishLockoutRejected(_ context.Context, event domain.LockoutRejectedEvent) error {
	p.events = append(p.events, recordedEvent{kind: "lockout", accountID: event.AccountID, grantType: event.GrantType})
	return nil
}

func (p *recordingPublisher) lastOfKind(kind string) (recordedEvent, bool) {
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].kind == kind {
			return p.events[i], true
		}
	}
	return recordedEvent{}, false
}

// totpCode computes the RFC 6238 code for a base32 secret at the given time.
func totpCode(t *testing.T, secret string, now time.Time) string {
	t.Helper()

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatalf("failed to decode totp secret: %v", err)
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(now.Unix()/30))

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%06d", bin%1000000)
}

const testTOTPSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

type authFixture struct {
	service   *AuthService
	accounts  *stubAccountRepo
	refresh   *stubRefreshRepo
	publisher *recordingPublisher
	now       time.Time
}

func newAuthFixture(t *testing.T, accounts ...domain.Account) *authFixture {
	t.Helper()

	accountRepo := newStubAccountRepo(accounts...)
	refreshRepo := newStubRefreshRepo(accountRepo)
	publisher := &recordingPublisher{}
	registry := &stubRegistry{resolvers: map[string]port.IdentityResolver{
		"Google": &stubResolver{identities: map[string]string{"valid-google-token": "google-user-1"}},
	}}

	service := NewAuthService(testConfig(), accountRepo, refreshRepo, registry, publisher, createTestKeyProvider(t), nil)

	// Pinned to construction time so issued tokens stay valid against the
	// wall clock jwt validation uses.
	now := time.Now().UTC().Truncate(time.Second)
	service.WithClock(func() time.Time { return now })

	return &authFixture{
		service:   service,
		accounts:  accountRepo,
		refresh:   refreshRepo,
		publisher: publisher,
		now:       now,
	}
}

func TestPasswordGrantIssuesTokenPair(t *testing.T) {
	account := domain.Account{
		ID:           "acc-1",
		Email:        "ada@example.com",
		PasswordHash: mustHashPassword(t, "correct horse battery"),
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Picture:      "https://example.com/ada.png",
		Roles:        []string{"user", "admin"},
	}
	fx := newAuthFixture(t, account)

	outcome, err := fx.service.Authenticate(context.Background(), GrantPassword, Credentials{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if outcome.Disposition() != DispositionResolved {
		t.Fatalf("expected resolved disposition, got %v", outcome.Disposition())
	}

	pair, err := fx.service.IssueTokenPair(context.Background(), outcome.Account, GrantPassword)
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}
	if pair.ExpiresIn != 3600 {
		t.Fatalf("expected expiresIn 3600, got %d", pair.ExpiresIn)
	}
	if pair.RefreshToken == "" {
		t.Fatal("expected a refresh token")
	}

	claims, err := fx.service.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Subject != "acc-1" {
		t.Errorf("expected subject acc-1, got %q", claims.Subject)
	}
	if claims.Email != "ada@example.com" {
		t.Errorf("unexpected email claim %q", claims.Email)
	}
	if claims.GivenName != "Ada" || claims.FamilyName != "Lovelace" {
		t.Errorf("unexpected name claims: %q %q", claims.GivenName, claims.FamilyName)
	}
	if claims.Picture != "https://example.com/ada.png" {
		t.Errorf("unexpected picture claim %q", claims.Picture)
	}
	if claims.Role != "user,admin" {
		t.Errorf("expected comma-joined roles, got %q", claims.Role)
	}

	if len(fx.refresh.appends) != 1 {
		t.Fatalf("expected one stored refresh token, got %d", len(fx.refresh.appends))
	}
	stored := fx.refresh.appends[0]
	if stored.keep != 10 {
		t.Errorf("expected history limit 10, got %d", stored.keep)
	}
	if stored.token.TokenHash != security.HashToken(pair.RefreshToken) {
		t.Error("stored token hash does not match issued refresh token")
	}
	if stored.token.TokenHash == pair.RefreshToken {
		t.Error("refresh token must not be stored in the clear")
	}

	if event, ok := fx.publisher.lastOfKind("login"); !ok || event.accountID != "acc-1" {
		t.Error("expected a login succeeded event for acc-1")
	}
}

func TestPasswordGrantUnknownAccountAndBadPasswordIndistinguishable(t *testing.T) {
	account := domain.Account{
		ID:           "acc-1",
		Email:        "ada@example.com",
		PasswordHash: mustHashPassword(t, "correct horse battery"),
	}
	fx := newAuthFixture(t, account)

	_, unknownErr := fx.service.Authenticate(context.Background(), GrantPassword, Credentials{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	_, badPasswordErr := fx.service.Authenticate(context.Background(), GrantPassword, Credentials{
		Email:    "ada@example.com",
		Password: "wrong",
	})

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown account: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if !errors.Is(badPasswordErr, ErrInvalidCredentials) {
		t.Fatalf("bad password: expected ErrInvalidCredentials, got %v", badPasswordErr)
	}
	if unknownErr.Error() != badPasswordErr.Error() {
		t.Errorf("failure messages differ: %q vs %q", unknownErr, badPasswordErr)
	}
}

func TestPasswordGrantEmptyHashNeverVerifies(t *testing.T) {
	// External-only accounts have no password hash; an empty password must
	// not slip through.
	account := domain.Account{
		ID:    "acc-ext",
		Email: "ext@example.com",
	}
	fx := newAuthFixture(t, account)

	_, err := fx.service.Authenticate(context.Background(), GrantPassword, Credentials{
		Email:    "ext@example.com",
		Password: "",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestPasswordGrantTwoFactorChallengeBeforeLockout(t *testing.T) {
	account := domain.Account{
		ID:               "acc-1",
		Email:            "ada@example.com",
		PasswordHash:     mustHashPassword(t, "correct horse battery"),
		IsLockedOut:      true,
		TwoFactorEnabled: true,
		TwoFactorSecret:  testTOTPSecret,
	}
	fx := newAuthFixture(t, account)

	outcome, err := fx.service.Authenticate(context.Background(), GrantPassword, Credentials{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if outcome.Disposition() != DispositionChallenge {
		t.Fatalf("expected challenge disposition, got %v", outcome.Disposition())
	}
	if !outcome.RequiresTwoFactor {
		t.Error("expected RequiresTwoFactor set")
	}
	if outcome.Account != nil {
		t.Error("challenge outcome must not expose the account")
	}
}

func TestPasswordGrantLockedOutAccount(t *testing.T) {
	account := domain.Account{
		ID:           "acc-1",
		Email:        "ada@example.com",
		PasswordHash: mustHashPassword(t, "correct horse battery"),
		IsLockedOut:  true,
	}
	fx := newAuthFixture(t, account)

	outcome, err := fx.service.Authenticate(context.Background(), GrantPassword, Credentials{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if outcome.Disposition() != DispositionLockedOut {
		t.Fatalf("expected locked-out disposition, got %v", outcome.Disposition())
	}
	if event, ok := fx.publisher.lastOfKind("lockout"); !ok || event.grantType != string(GrantPassword) {
		t.Error("expected a lockout rejected event for the password grant")
	}
}

func TestPasswordGrantWrongPasswordRevealsNothingOnLockedAccount(t *testing.T) {
	account := domain.Account{
		ID:           "acc-1",
		Email:        "ada@example.com",
		PasswordHash: mustHashPassword(t, "correct horse battery"),
		IsLockedOut:  true,
	}
	fx := newAuthFixture(t, account)

	_, err := fx.service.Authenticate(context.Background(), GrantPassword, Credentials{
		Email:    "ada@example.com",
		Password: "wrong",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, ok := fx.publisher.lastOfKind("lockout"); ok {
		t.Error("wrong password must not surface the lockout state")
	}
}

func TestRefreshGrantConsumesTokenExactlyOnce(t *testing.T) {
	account := domain.Account{ID: "acc-1", Email: "ada@example.com"}
	fx := newAuthFixture(t, account)
	fx.refresh.seed("acc-1", "raw-refresh-token")

	outcome, err := fx.service.Authenticate(context.Background(), GrantRefreshToken, Credentials{
		RefreshToken: "raw-refresh-token",
	})
	if err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if outcome.Disposition() != DispositionResolved {
		t.Fatalf("expected resolved disposition, got %v", outcome.Disposition())
	}

	_, err = fx.service.Authenticate(context.Background(), GrantRefreshToken, Credentials{
		RefreshToken: "raw-refresh-token",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("second redemption: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshGrantUnknownToken(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.service.Authenticate(context.Background(), GrantRefreshToken, Credentials{
		RefreshToken: "forged",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshGrantLockedOutLeavesTokenUnconsumed(t *testing.T) {
	account := domain.Account{ID: "acc-1", Email: "ada@example.com", IsLockedOut: true}
	fx := newAuthFixture(t, account)
	fx.refresh.seed("acc-1", "raw-refresh-token")

	outcome, err := fx.service.Authenticate(context.Background(), GrantRefreshToken, Credentials{
		RefreshToken: "raw-refresh-token",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if outcome.Disposition() != DispositionLockedOut {
		t.Fatalf("expected locked-out disposition, got %v", outcome.Disposition())
	}

	if _, ok := fx.refresh.owners[security.HashToken("raw-refresh-token")]; !ok {
		t.Error("lockout must not consume the refresh token")
	}
	if event, ok := fx.publisher.lastOfKind("lockout"); !ok || event.grantType != string(GrantRefreshToken) {
		t.Error("expected a lockout rejected event for the refresh grant")
	}
}

func TestRefreshGrantNeverRequestsSecondFactor(t *testing.T) {
	account := domain.Account{
		ID:               "acc-1",
		Email:            "ada@example.com",
		TwoFactorEnabled: true,
		TwoFactorSecret:  testTOTPSecret,
	}
	fx := newAuthFixture(t, account)
	fx.refresh.seed("acc-1", "raw-refresh-token")

	outcome, err := fx.service.Authenticate(context.Background(), GrantRefreshToken, Credentials{
		RefreshToken: "raw-refresh-token",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if outcome.Disposition() != DispositionResolved {
		t.Fatalf("expected resolved disposition, got %v", outcome.Disposition())
	}
	if outcome.RequiresTwoFactor {
		t.Error("refresh grant must not raise a two-factor challenge")
	}
}

func TestExternalGrantResolvesLinkedAccount(t *testing.T) {
	account := domain.Account{
		ID:    "acc-1",
		Email: "ada@example.com",
		ExternalLogins: []domain.ExternalLogin{
			{Provider: "Google", ExternalID: "google-user-1"},
		},
	}
	fx := newAuthFixture(t, account)

	outcome, err := fx.service.Authenticate(context.Background(), GrantExternal, Credentials{
		Provider:    "Google",
		AccessToken: "valid-google-token",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if outcome.Disposition() != DispositionResolved {
		t.Fatalf("expected resolved disposition, got %v", outcome.Disposition())
	}
	if outcome.Account.ID != "acc-1" {
		t.Errorf("expected account acc-1, got %q", outcome.Account.ID)
	}
}

func TestExternalGrantUnlinkedIdentity(t *testing.T) {
	fx := newAuthFixture(t)

	outcome, err := fx.service.Authenticate(context.Background(), GrantExternal, Credentials{
		Provider:    "Google",
		AccessToken: "valid-google-token",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if outcome.Disposition() != DispositionChallenge {
		t.Fatalf("expected challenge disposition, got %v", outcome.Disposition())
	}
	if !outcome.RequiresExternal {
		t.Error("expected RequiresExternal set for an unlinked identity")
	}
}

func TestExternalGrantUnresolvedToken(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.service.Authenticate(context.Background(), GrantExternal, Credentials{
		Provider:    "Google",
		AccessToken: "forged-token",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestExternalGrantUnknownProvider(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.service.Authenticate(context.Background(), GrantExternal, Credentials{
		Provider:    "MySpace",
		AccessToken: "whatever",
	})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestTwoFactorGrantValidCodeResolves(t *testing.T) {
	account := domain.Account{
		ID:               "acc-1",
		Email:            "ada@example.com",
		PasswordHash:     mustHashPassword(t, "correct horse battery"),
		TwoFactorEnabled: true,
		TwoFactorSecret:  testTOTPSecret,
	}
	fx := newAuthFixture(t, account)

	outcome, err := fx.service.Authenticate(context.Background(), GrantTwoFactor, Credentials{
		Email:            "ada@example.com",
		Password:         "correct horse battery",
		VerificationCode: totpCode(t, testTOTPSecret, fx.now),
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if outcome.Disposition() != DispositionResolved {
		t.Fatalf("expected resolved disposition, got %v", outcome.Disposition())
	}
}

func TestTwoFactorGrantInvalidCode(t *testing.T) {
	account := domain.Account{
		ID:               "acc-1",
		Email:            "ada@example.com",
		PasswordHash:     mustHashPassword(t, "correct horse battery"),
		TwoFactorEnabled: true,
		TwoFactorSecret:  testTOTPSecret,
	}
	fx := newAuthFixture(t, account)

	_, err := fx.service.Authenticate(context.Background(), GrantTwoFactor, Credentials{
		Email:            "ada@example.com",
		Password:         "correct horse battery",
		VerificationCode: "000000",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestTwoFactorGrantLockoutAfterValidCode(t *testing.T) {
	account := domain.Account{
		ID:               "acc-1",
		Email:            "ada@example.com",
		PasswordHash:     mustHashPassword(t, "correct horse battery"),
		IsLockedOut:      true,
		TwoFactorEnabled: true,
		TwoFactorSecret:  testTOTPSecret,
	}
	fx := newAuthFixture(t, account)

	outcome, err := fx.service.Authenticate(context.Background(), GrantTwoFactor, Credentials{
		Email:            "ada@example.com",
		Password:         "correct horse battery",
		VerificationCode: totpCode(t, testTOTPSecret, fx.now),
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if outcome.Disposition() != DispositionLockedOut {
		t.Fatalf("expected locked-out disposition, got %v", outcome.Disposition())
	}
}

func TestTwoFactorGrantWithoutEnrolledSecret(t *testing.T) {
	account := domain.Account{
		ID:           "acc-1",
		Email:        "ada@example.com",
		PasswordHash: mustHashPassword(t, "correct horse battery"),
	}
	fx := newAuthFixture(t, account)

	_, err := fx.service.Authenticate(context.Background(), GrantTwoFactor, Credentials{
		Email:            "ada@example.com",
		Password:         "correct horse battery",
		VerificationCode: "123456",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateRejectsUnknownGrant(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.service.Authenticate(context.Background(), GrantType("ClientCredentials"), Credentials{})
	if !errors.Is(err, ErrUnsupportedGrantType) {
		t.Fatalf("expected ErrUnsupportedGrantType, got %v", err)
	}
}

func TestParseGrantType(t *testing.T) {
	for _, value := range []string{"Password", "RefreshToken", "External", "TwoFactor"} {
		if _, err := ParseGrantType(value); err != nil {
			t.Errorf("ParseGrantType(%q): unexpected error %v", value, err)
		}
	}

	if _, err := ParseGrantType("password"); !errors.Is(err, ErrUnsupportedGrantType) {
		t.Error("grant type matching must be case sensitive")
	}
	if _, err := ParseGrantType(""); !errors.Is(err, ErrUnsupportedGrantType) {
		t.Error("empty grant type must be rejected")
	}
}

func TestParseAccessTokenRejectsInvalid(t *testing.T) {
	account := domain.Account{ID: "acc-1", Email: "ada@example.com"}
	fx := newAuthFixture(t, account)

	pair, err := fx.service.IssueTokenPair(context.Background(), &account, GrantPassword)
	if err != nil {
		t.Fatalf("issue token pair: %v", err)
	}

	if _, err := fx.service.ParseAccessToken(pair.AccessToken); err != nil {
		t.Fatalf("fresh token should parse: %v", err)
	}

	if _, err := fx.service.ParseAccessToken(pair.AccessToken + "tampered"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("tampered token: expected ErrInvalidAccessToken, got %v", err)
	}

	if _, err := fx.service.ParseAccessToken("not-a-jwt"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("garbage token: expected ErrInvalidAccessToken, got %v", err)
	}
}

// trimmingRefreshStore keeps real per-account history and applies the trim
// Append promises, so rotation bounds can be observed rather than inferred
// from recorded arguments.
type trimmingRefreshStore struct {
	history map[string][]domain.RefreshToken
}

func newTrimmingRefreshStore() *trimmingRefreshStore {
	return &trimmingRefreshStore{history: make(map[string][]domain.RefreshToken)}
}

func (s *trimmingRefreshStore) GetAccountByToken(context.Context, string) (*domain.Account, error) {
	return nil, repository.ErrNotFound
}

func (s *trimmingRefreshStore) Consume(_ context.Context, tokenHash string) error {
	for accountID, tokens := range s.history {
		for i, token := range tokens {
			if token.TokenHash == tokenHash {
				s.history[accountID] = append(tokens[:i], tokens[i+1:]...)
				return nil
			}
		}
	}
	return repository.ErrNotFound
}

func (s *trimmingRefreshStore) Append(_ context.Context, accountID string, token domain.RefreshToken, keep int) error {
	tokens := append(s.history[accountID], token)
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].IssuedAt.After(tokens[j].IssuedAt)
	})
	if len(tokens) > keep {
		tokens = tokens[:keep]
	}
	s.history[accountID] = tokens
	return nil
}

func (s *trimmingRefreshStore) ListByAccount(_ context.Context, accountID string) ([]domain.RefreshToken, error) {
	return s.history[accountID], nil
}

func TestRefreshTokenHistoryKeepsTenNewest(t *testing.T) {
	account := domain.Account{ID: "acc-1", Email: "ada@example.com"}
	store := newTrimmingRefreshStore()

	service := NewAuthService(testConfig(), newStubAccountRepo(account), store, nil, nil, createTestKeyProvider(t), nil)

	clock := time.Now().UTC().Truncate(time.Second)
	service.WithClock(func() time.Time { return clock })

	var issuedHashes []string
	for i := 0; i < 11; i++ {
		pair, err := service.IssueTokenPair(context.Background(), &account, GrantPassword)
		if err != nil {
			t.Fatalf("issuance %d: %v", i+1, err)
		}
		issuedHashes = append(issuedHashes, security.HashToken(pair.RefreshToken))
		clock = clock.Add(time.Second)
	}

	tokens, err := store.ListByAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}

	if len(tokens) != 10 {
		t.Fatalf("expected exactly 10 tokens after 11 issuances, got %d", len(tokens))
	}

	remaining := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		remaining[token.TokenHash] = true
	}

	if remaining[issuedHashes[0]] {
		t.Error("oldest token should have been trimmed")
	}
	for _, hash := range issuedHashes[1:] {
		if !remaining[hash] {
			t.Errorf("newer token %s missing from history", hash)
		}
	}
}

func TestIssuedRefreshTokensAreOpaqueAndUnique(t *testing.T) {
	account := domain.Account{ID: "acc-1", Email: "ada@example.com"}
	fx := newAuthFixture(t, account)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		pair, err := fx.service.IssueTokenPair(context.Background(), &account, GrantPassword)
		if err != nil {
			t.Fatalf("issue token pair: %v", err)
		}
		if strings.Contains(pair.RefreshToken, "acc-1") {
			t.Error("refresh token must not embed the account id")
		}
		if seen[pair.RefreshToken] {
			t.Fatal("duplicate refresh token issued")
		}
		seen[pair.RefreshToken] = true
	}
}
