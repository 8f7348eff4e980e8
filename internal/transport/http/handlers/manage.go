package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/transport/http/middleware"
	"github.com/arklim/identity-token-service/internal/usecase"
)

// ManageHandler serves authenticated account management endpoints.
type ManageHandler struct {
	twoFactor *usecase.TwoFactorService
	logger    *zap.Logger
}

// NewManageHandler constructs a ManageHandler.
func NewManageHandler(twoFactor *usecase.TwoFactorService, logger *zap.Logger) *ManageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManageHandler{twoFactor: twoFactor, logger: logger}
}

// TwoFactorSetup handles POST /api/v1/manage/two-factor/setup.
func (h *ManageHandler) TwoFactorSetup(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return
	}

	enrollment, err := h.twoFactor.Setup(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorAlreadyEnabled, Status: http.StatusConflict, Message: "two-factor already enabled"},
		}, http.StatusInternalServerError, "two-factor setup failed")
		return
	}

	c.JSON(http.StatusOK, TwoFactorSetupResponse{
		Secret:       enrollment.Secret,
		ProvisionURI: enrollment.ProvisionURI,
	})
}

// TwoFactorEnable handles POST /api/v1/manage/two-factor/enable.
func (h *ManageHandler) TwoFactorEnable(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return
	}

	var req TwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.twoFactor.Enable(c.Request.Context(), accountID, req.Code); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoPendingEnrollment, Status: http.StatusBadRequest, Message: "no pending two-factor enrollment"},
			{Err: usecase.ErrInvalidVerificationCode, Status: http.StatusBadRequest, Message: "invalid verification code"},
		}, http.StatusInternalServerError, "two-factor enable failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor enabled"})
}

// TwoFactorDisable handles POST /api/v1/manage/two-factor/disable.
func (h *ManageHandler) TwoFactorDisable(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return
	}

	var req TwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.twoFactor.Disable(c.Request.Context(), accountID, req.Code); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorNotEnabled, Status: http.StatusBadRequest, Message: "two-factor not enabled"},
			{Err: usecase.ErrInvalidVerificationCode, Status: http.StatusBadRequest, Message: "invalid verification code"},
		}, http.StatusInternalServerError, "two-factor disable failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor disabled"})
}
