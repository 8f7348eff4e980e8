package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/identity-token-service/internal/repository"
)

const defaultEnrollmentPrefix = "two-factor-enrollment"

// EnrollmentRepository holds pending two-factor shared secrets in Redis
// with a TTL, so an abandoned enrollment expires on its own and the
// enrolled column on the account is only ever written after the owner
// proves possession of the secret.
type EnrollmentRepository struct {
	client *red.Client
	prefix string
}

// NewEnrollmentRepository constructs a new enrollment repository with the
// provided Redis client and key prefix.
func NewEnrollmentRepository(client *red.Client, keyPrefix string) *EnrollmentRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultEnrollmentPrefix
	}

	return &EnrollmentRepository{
		client: client,
		prefix: prefix,
	}
}

// Store persists the pending secret for the account with the supplied TTL,
// replacing any earlier pending enrollment.
func (r *EnrollmentRepository) Store(ctx context.Context, accountID, secret string, ttl time.Duration) error {
	accountID = strings.TrimSpace(accountID)
	secret = strings.TrimSpace(secret)

	switch {
	case accountID == "":
		return errors.New("account id is required")
	case secret == "":
		return errors.New("secret is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, r.key(accountID), secret, ttl).Err(); err != nil {
		return fmt.Errorf("redis store enrollment secret: %w", err)
	}

	return nil
}

// Fetch retrieves the pending secret for the account.
func (r *EnrollmentRepository) Fetch(ctx context.Context, accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", errors.New("account id is required")
	}

	secret, err := r.client.Get(ctx, r.key(accountID)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get enrollment secret: %w", err)
	}

	return secret, nil
}

// Delete removes the pending secret, enforcing single-use semantics.
func (r *EnrollmentRepository) Delete(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return errors.New("account id is required")
	}

	deleted, err := r.client.Del(ctx, r.key(accountID)).Result()
	if err != nil {
		return fmt.Errorf("redis delete enrollment secret: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *EnrollmentRepository) key(accountID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, accountID)
}
