package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/repository"
)

// RefreshTokenRepository implements port.RefreshTokenRepository using
// PostgreSQL. Tokens are stored hashed in identity.refresh_tokens.
type RefreshTokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	begin   pgBeginner
	builder squirrel.StatementBuilderType
}

// NewRefreshTokenRepository constructs a repository backed by any executor
// that satisfies pgExecutor.
func NewRefreshTokenRepository(exec pgExecutor) *RefreshTokenRepository {
	repo := &RefreshTokenRepository{
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

// WithTx returns a repository instance executing within the provided transaction.
func (r *RefreshTokenRepository) WithTx(tx pgx.Tx) *RefreshTokenRepository {
	if tx == nil {
		return r
	}
	return &RefreshTokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// GetAccountByToken resolves the account owning the token without consuming it.
func (r *RefreshTokenRepository) GetAccountByToken(ctx context.Context, tokenHash string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select("account_id").
		From("identity.refresh_tokens").
		Where(squirrel.Eq{"token_hash": tokenHash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var accountID string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&accountID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select refresh token: %w", err)
	}

	accounts := NewAccountRepository(r.exec)
	return accounts.GetByID(ctx, accountID)
}

// Consume removes exactly this token. The DELETE is keyed by the token hash
// so concurrent redemptions of the same token succeed at most once; the
// loser observes zero rows affected and gets ErrNotFound.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string) error {
	stmt, args, err := r.builder.
		Delete("identity.refresh_tokens").
		Where(squirrel.Eq{"token_hash": tokenHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete refresh token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Append inserts the new token and trims the account's history to the keep
// newest entries by issue time, inside one transaction.
func (r *RefreshTokenRepository) Append(ctx context.Context, accountID string, token domain.RefreshToken, keep int) error {
	if keep <= 0 {
		keep = 10
	}

	exec := r.exec
	var tx pgx.Tx
	if r.begin != nil {
		var err error
		tx, err = r.begin.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin append refresh token: %w", err)
		}
		defer func() {
			_ = tx.Rollback(ctx)
		}()
		exec = tx
	}

	insertSQL, insertArgs, err := r.builder.
		Insert("identity.refresh_tokens").
		Columns("account_id", "token_hash", "issued_at").
		Values(accountID, token.TokenHash, token.IssuedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := exec.Exec(ctx, insertSQL, insertArgs...); err != nil {
		return mapAccountError("insert refresh token", err)
	}

	trimSQL := `DELETE FROM identity.refresh_tokens
		WHERE account_id = $1
		AND token_hash NOT IN (
			SELECT token_hash FROM identity.refresh_tokens
			WHERE account_id = $1
			ORDER BY issued_at DESC
			LIMIT $2
		)`

	if _, err := exec.Exec(ctx, trimSQL, accountID, keep); err != nil {
		return fmt.Errorf("trim refresh tokens: %w", err)
	}

	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit append refresh token: %w", err)
		}
	}

	return nil
}

// ListByAccount returns the account's history ordered newest first.
func (r *RefreshTokenRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.RefreshToken, error) {
	stmt, args, err := r.builder.
		Select("token_hash", "issued_at").
		From("identity.refresh_tokens").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("issued_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list refresh tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		var token domain.RefreshToken
		if err := rows.Scan(&token.TokenHash, &token.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}

	return tokens, nil
}
