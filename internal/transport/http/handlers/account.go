package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/infra/logger"
	"github.com/arklim/identity-token-service/internal/infra/security"
	"github.com/arklim/identity-token-service/internal/usecase"
)

const dateOfBirthLayout = "2006-01-02"

// AccountHandler serves registration and password recovery endpoints.
type AccountHandler struct {
	accounts *usecase.AccountService
	logger   *zap.Logger
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(accounts *usecase.AccountService, logger *zap.Logger) *AccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountHandler{accounts: accounts, logger: logger}
}

// Register handles POST /api/v1/account/register.
func (h *AccountHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	dob, ok := parseDateOfBirth(c, req.DateOfBirth)
	if !ok {
		return
	}

	account, err := h.accounts.RegisterWithPassword(c.Request.Context(), usecase.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Picture:     req.Picture,
		DateOfBirth: dob,
	})
	if err != nil {
		h.respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{ID: account.ID, Email: account.Email})
}

// RegisterExternal handles POST /api/v1/account/register/external.
func (h *AccountHandler) RegisterExternal(c *gin.Context) {
	var req ExternalRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	dob, ok := parseDateOfBirth(c, req.DateOfBirth)
	if !ok {
		return
	}

	account, err := h.accounts.RegisterExternal(c.Request.Context(), usecase.ExternalRegisterInput{
		Provider:    req.Provider,
		AccessToken: req.AccessToken,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Picture:     req.Picture,
		DateOfBirth: dob,
	})
	if err != nil {
		h.logger.Warn("external registration failed",
			zap.String("provider", req.Provider),
			zap.String("access_token", logger.MaskString(req.AccessToken)),
			zap.Error(err))
		h.respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{ID: account.ID, Email: account.Email})
}

// ForgotPassword handles POST /api/v1/account/password/forgot. The response
// is the same whether or not the email is registered.
func (h *AccountHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("forgot password",
			zap.String("email", logger.MaskEmail(req.Email)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "request failed"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "if the email is registered, a reset code has been sent"})
}

// ResetPassword handles POST /api/v1/account/password/reset.
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.accounts.ResetPassword(c.Request.Context(), req.Email, req.Code, req.Password)
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: policyErr.Error()})
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidResetCode, Status: http.StatusBadRequest, Message: "invalid or expired reset code"},
		}, http.StatusInternalServerError, "password reset failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

func (h *AccountHandler) respondRegistrationError(c *gin.Context, err error) {
	var policyErr *security.PasswordValidationError
	if errors.As(err, &policyErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: policyErr.Error()})
		return
	}

	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
		{Err: usecase.ErrExternalLoginTaken, Status: http.StatusConflict, Message: "external login already linked"},
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: usecase.ErrUnsupportedProvider, Status: http.StatusBadRequest, Message: "unsupported provider"},
	}, http.StatusInternalServerError, "registration failed")
}

func parseDateOfBirth(c *gin.Context, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}

	parsed, err := time.Parse(dateOfBirthLayout, value)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "dateOfBirth must be formatted YYYY-MM-DD"})
		return nil, false
	}
	return &parsed, true
}
