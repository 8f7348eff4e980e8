package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/infra/logger"
	"github.com/arklim/identity-token-service/internal/infra/telemetry"
	"github.com/arklim/identity-token-service/internal/usecase"
)

// TokenHandler serves the grant-dispatch endpoint.
type TokenHandler struct {
	auth    *usecase.AuthService
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewTokenHandler constructs a TokenHandler.
func NewTokenHandler(auth *usecase.AuthService, metrics *telemetry.Metrics, logger *zap.Logger) *TokenHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenHandler{auth: auth, metrics: metrics, logger: logger}
}

// Token handles POST /api/v1/auth/token. One endpoint serves all four
// grant kinds; the body's grantType field selects the authenticator.
func (h *TokenHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	grant, err := usecase.ParseGrantType(req.GrantType)
	if err != nil {
		h.observe(req.GrantType, "unsupported_grant")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported grant type"})
		return
	}

	creds := usecase.Credentials{
		Email:            req.Email,
		Password:         req.Password,
		RefreshToken:     req.RefreshToken,
		Provider:         req.Provider,
		AccessToken:      req.AccessToken,
		VerificationCode: req.VerificationCode,
	}

	outcome, err := h.auth.Authenticate(c.Request.Context(), grant, creds)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidCredentials):
			h.observe(string(grant), "invalid_credentials")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid credentials"})
		case errors.Is(err, usecase.ErrUnsupportedProvider):
			h.observe(string(grant), "unsupported_provider")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported provider"})
		case errors.Is(err, usecase.ErrUnsupportedGrantType):
			h.observe(string(grant), "unsupported_grant")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported grant type"})
		default:
			logger.WithContext(c.Request.Context()).Error("authenticate",
				zap.String("grant_type", string(grant)), zap.Error(err))
			h.observe(string(grant), "error")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "authentication failed"})
		}
		return
	}

	// A pending challenge or lockout is not a success: both answer 400 with
	// the structured flags. The challenge carries the lockout flag alongside
	// so the client can defer the lockout message until the step-up is done.
	switch outcome.Disposition() {
	case usecase.DispositionChallenge:
		h.observe(string(grant), "challenge")
		c.JSON(http.StatusBadRequest, ChallengeResponse{
			RequiresTwoFactor: outcome.RequiresTwoFactor,
			RequiresExternal:  outcome.RequiresExternal,
			IsLockedOut:       outcome.IsLockedOut,
		})
		return
	case usecase.DispositionLockedOut:
		h.observe(string(grant), "locked_out")
		c.JSON(http.StatusBadRequest, ChallengeResponse{IsLockedOut: true})
		return
	}

	pair, err := h.auth.IssueTokenPair(c.Request.Context(), outcome.Account, grant)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("issue token pair",
			zap.String("grant_type", string(grant)), zap.Error(err))
		h.observe(string(grant), "error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "token issuance failed"})
		return
	}

	h.observe(string(grant), "resolved")
	if grant == usecase.GrantRefreshToken && h.metrics != nil {
		h.metrics.ObserveRefreshConsumed()
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func (h *TokenHandler) observe(grantType, result string) {
	if h.metrics != nil {
		h.metrics.ObserveGrant(grantType, result)
	}
}
