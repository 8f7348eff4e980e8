package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/infra/security"
)

const refreshTokenByteLength = 32

// TokenPair is the product of a successful authentication: a signed access
// token plus a fresh opaque refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// AccessTokenClaims is the payload carried by issued access tokens. Role is
// the comma-joined role list so resource servers can split it without
// knowing the account model.
type AccessTokenClaims struct {
	Email      string `json:"email,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Picture    string `json:"picture,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueTokenPair mints an access/refresh pair for a resolved account. The
// new refresh token is recorded before the raw value leaves the service,
// and recording it also trims the account's history to the configured
// newest entries.
func (s *AuthService) IssueTokenPair(ctx context.Context, account *domain.Account, grant GrantType) (*TokenPair, error) {
	if account == nil {
		return nil, errors.New("issue token pair: account is required")
	}

	now := s.now()
	ttl := s.cfg.JWT.AccessTokenTTL

	accessToken, err := s.signAccessToken(account, now, ttl)
	if err != nil {
		return nil, err
	}

	refreshToken, err := security.GenerateSecureToken(refreshTokenByteLength)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	record := domain.RefreshToken{
		TokenHash: security.HashToken(refreshToken),
		IssuedAt:  now,
	}
	if err := s.refreshTokens.Append(ctx, account.ID, record, s.cfg.JWT.RefreshHistoryLimit); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.publishIssued(ctx, account, grant, now)

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(ttl.Seconds()),
	}, nil
}

func (s *AuthService) signAccessToken(account *domain.Account, now time.Time, ttl time.Duration) (string, error) {
	claims := AccessTokenClaims{
		Email:      account.Email,
		GivenName:  account.FirstName,
		FamilyName: account.LastName,
		Picture:    account.Picture,
		Role:       strings.Join(account.Roles, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.App.Name,
			Subject:   account.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyProvider.SigningKID()

	signingKey, err := s.keyProvider.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("load signing key: %w", err)
	}

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates a bearer token and returns its claims. The
// verification key is selected by the token's kid header.
func (s *AuthService) ParseAccessToken(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		return s.keyProvider.GetVerificationKey(kid)
	},
		jwt.WithIssuer(s.cfg.App.Name),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

func (s *AuthService) publishIssued(ctx context.Context, account *domain.Account, grant GrantType, at time.Time) {
	if s.events == nil {
		return
	}

	if grant == GrantRefreshToken {
		event := domain.TokenRefreshedEvent{
			EventID:     uuid.NewString(),
			AccountID:   account.ID,
			RefreshedAt: at,
		}
		if err := s.events.PublishTokenRefreshed(ctx, event); err != nil {
			s.logger.Warn("publish token refreshed event", zap.Error(err))
		}
		return
	}

	event := domain.LoginSucceededEvent{
		EventID:   uuid.NewString(),
		AccountID: account.ID,
		GrantType: string(grant),
		LoginAt:   at,
	}
	if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
		s.logger.Warn("publish login succeeded event", zap.Error(err))
	}
}
