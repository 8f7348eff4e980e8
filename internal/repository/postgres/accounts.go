package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/repository"
)

const pgUniqueViolation = "23505"

var accountColumns = []string{
	"id",
	"email",
	"password_hash",
	"first_name",
	"last_name",
	"picture",
	"date_of_birth",
	"roles",
	"is_locked_out",
	"two_factor_enabled",
	"two_factor_secret",
	"created_at",
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	begin   pgBeginner
	builder squirrel.StatementBuilderType
}

// NewAccountRepository wires an account repository backed by any executor
// satisfying pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	if beginner, ok := exec.(pgBeginner); ok {
		repo.begin = beginner
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new account row together with any pre-linked external
// logins. The account insert and the login inserts commit as one unit, so a
// duplicate (provider, external id) cannot leave an orphaned account behind.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	var passwordValue any
	if account.PasswordHash != "" {
		passwordValue = account.PasswordHash
	}

	var secretValue any
	if account.TwoFactorSecret != "" {
		secretValue = account.TwoFactorSecret
	}

	stmt, args, err := r.builder.Insert("identity.accounts").
		Columns(accountColumns...).
		Values(
			account.ID,
			account.Email,
			passwordValue,
			account.FirstName,
			account.LastName,
			account.Picture,
			account.DateOfBirth,
			account.Roles,
			account.IsLockedOut,
			account.TwoFactorEnabled,
			secretValue,
			account.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	exec := r.exec
	var tx pgx.Tx
	if r.begin != nil {
		tx, err = r.begin.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin create account: %w", err)
		}
		defer func() {
			_ = tx.Rollback(ctx)
		}()
		exec = tx
	}

	if _, err := exec.Exec(ctx, stmt, args...); err != nil {
		return mapAccountError("insert account", err)
	}

	for _, login := range account.ExternalLogins {
		if err := r.insertExternalLogin(ctx, exec, account.ID, login); err != nil {
			return err
		}
	}

	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit create account: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves an account by its unique email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

// GetByExternalLogin retrieves the account linked to the given provider identity.
func (r *AccountRepository) GetByExternalLogin(ctx context.Context, provider, externalID string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select("account_id").
		From("identity.external_logins").
		Where(squirrel.Eq{"provider": provider, "external_id": externalID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select external login sql: %w", err)
	}

	var accountID string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&accountID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select external login: %w", err)
	}

	return r.GetByID(ctx, accountID)
}

// AddExternalLogin links a provider identity to the account.
func (r *AccountRepository) AddExternalLogin(ctx context.Context, accountID string, login domain.ExternalLogin) error {
	return r.insertExternalLogin(ctx, r.exec, accountID, login)
}

func (r *AccountRepository) insertExternalLogin(ctx context.Context, exec pgExecutor, accountID string, login domain.ExternalLogin) error {
	stmt, args, err := r.builder.Insert("identity.external_logins").
		Columns("account_id", "provider", "external_id").
		Values(accountID, login.Provider, login.ExternalID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert external login sql: %w", err)
	}

	if _, err := exec.Exec(ctx, stmt, args...); err != nil {
		return mapAccountError("insert external login", err)
	}

	return nil
}

// SetPasswordResetRequest stores the hashed single-use reset code.
func (r *AccountRepository) SetPasswordResetRequest(ctx context.Context, accountID string, request domain.PasswordResetRequest) error {
	stmt, args, err := r.builder.Update("identity.accounts").
		Set("password_reset_token_hash", request.TokenHash).
		Set("password_reset_expires_at", request.ExpiresAt).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update reset request sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update reset request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GetPasswordResetRequest returns the pending reset request, if any.
func (r *AccountRepository) GetPasswordResetRequest(ctx context.Context, accountID string) (*domain.PasswordResetRequest, error) {
	stmt, args, err := r.builder.
		Select("password_reset_token_hash", "password_reset_expires_at").
		From("identity.accounts").
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset request sql: %w", err)
	}

	var (
		tokenHash sql.NullString
		expiresAt sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&tokenHash, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select reset request: %w", err)
	}

	if !tokenHash.Valid || tokenHash.String == "" {
		return nil, repository.ErrNotFound
	}

	request := &domain.PasswordResetRequest{TokenHash: tokenHash.String}
	if expiresAt.Valid {
		request.ExpiresAt = expiresAt.Time
	}

	return request, nil
}

// ResetPassword replaces the password hash, clears the pending reset
// request, and drops two-factor enrollment in a single statement.
func (r *AccountRepository) ResetPassword(ctx context.Context, accountID, passwordHash string) error {
	stmt, args, err := r.builder.Update("identity.accounts").
		Set("password_hash", passwordHash).
		Set("password_reset_token_hash", nil).
		Set("password_reset_expires_at", nil).
		Set("two_factor_enabled", false).
		Set("two_factor_secret", nil).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// EnableTwoFactor persists the enrolled shared secret.
func (r *AccountRepository) EnableTwoFactor(ctx context.Context, accountID, secret string) error {
	stmt, args, err := r.builder.Update("identity.accounts").
		Set("two_factor_enabled", true).
		Set("two_factor_secret", secret).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enable two-factor sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DisableTwoFactor clears the enrolled shared secret.
func (r *AccountRepository) DisableTwoFactor(ctx context.Context, accountID string) error {
	stmt, args, err := r.builder.Update("identity.accounts").
		Set("two_factor_enabled", false).
		Set("two_factor_secret", nil).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build disable two-factor sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From("identity.accounts").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		account      domain.Account
		passwordHash sql.NullString
		picture      sql.NullString
		dateOfBirth  sql.NullTime
		secret       sql.NullString
	)

	if err := row.Scan(
		&account.ID,
		&account.Email,
		&passwordHash,
		&account.FirstName,
		&account.LastName,
		&picture,
		&dateOfBirth,
		&account.Roles,
		&account.IsLockedOut,
		&account.TwoFactorEnabled,
		&secret,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}

	account.PasswordHash = passwordHash.String
	account.Picture = picture.String
	account.TwoFactorSecret = secret.String
	if dateOfBirth.Valid {
		t := dateOfBirth.Time
		account.DateOfBirth = &t
	}

	logins, err := r.listExternalLogins(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.ExternalLogins = logins

	return &account, nil
}

func (r *AccountRepository) listExternalLogins(ctx context.Context, accountID string) ([]domain.ExternalLogin, error) {
	stmt, args, err := r.builder.
		Select("provider", "external_id").
		From("identity.external_logins").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("provider").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select external logins sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select external logins: %w", err)
	}
	defer rows.Close()

	var logins []domain.ExternalLogin
	for rows.Next() {
		var login domain.ExternalLogin
		if err := rows.Scan(&login.Provider, &login.ExternalID); err != nil {
			return nil, fmt.Errorf("scan external login: %w", err)
		}
		logins = append(logins, login)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate external logins: %w", err)
	}

	return logins, nil
}

func mapAccountError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, repository.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
