package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/repository"
)

func TestRefreshTokenRepository_Consume(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRefreshTokenRepository(mock)

	mock.ExpectExec(`DELETE FROM identity\.refresh_tokens`).
		WithArgs("hash-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := repo.Consume(context.Background(), "hash-1"); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_ConsumeAlreadyRedeemed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRefreshTokenRepository(mock)

	// A racing redemption deleted the row first; zero rows affected must
	// surface as not-found rather than success.
	mock.ExpectExec(`DELETE FROM identity\.refresh_tokens`).
		WithArgs("hash-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = repo.Consume(context.Background(), "hash-1")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_AppendInsertsAndTrims(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRefreshTokenRepository(mock)

	issuedAt := time.Now().UTC()
	token := domain.RefreshToken{TokenHash: "hash-1", IssuedAt: issuedAt}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO identity\.refresh_tokens`).
		WithArgs("acc-1", "hash-1", issuedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM identity\.refresh_tokens`).
		WithArgs("acc-1", 10).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	if err := repo.Append(context.Background(), "acc-1", token, 10); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_AppendRollsBackOnTrimFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRefreshTokenRepository(mock)

	issuedAt := time.Now().UTC()
	token := domain.RefreshToken{TokenHash: "hash-1", IssuedAt: issuedAt}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO identity\.refresh_tokens`).
		WithArgs("acc-1", "hash-1", issuedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM identity\.refresh_tokens`).
		WithArgs("acc-1", 10).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	if err := repo.Append(context.Background(), "acc-1", token, 10); err == nil {
		t.Fatal("expected error from failed trim")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_GetAccountByTokenNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRefreshTokenRepository(mock)

	mock.ExpectQuery(`SELECT account_id FROM identity\.refresh_tokens`).
		WithArgs("unknown-hash").
		WillReturnRows(pgxmock.NewRows([]string{"account_id"}))

	_, err = repo.GetAccountByToken(context.Background(), "unknown-hash")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_ListByAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRefreshTokenRepository(mock)

	newer := time.Now().UTC()
	older := newer.Add(-time.Hour)

	rows := pgxmock.NewRows([]string{"token_hash", "issued_at"}).
		AddRow("hash-new", newer).
		AddRow("hash-old", older)

	mock.ExpectQuery(`SELECT token_hash, issued_at FROM identity\.refresh_tokens`).
		WithArgs("acc-1").
		WillReturnRows(rows)

	tokens, err := repo.ListByAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("ListByAccount returned error: %v", err)
	}

	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].TokenHash != "hash-new" || tokens[1].TokenHash != "hash-old" {
		t.Fatalf("expected newest-first ordering, got %v", tokens)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
