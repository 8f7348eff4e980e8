package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/identity-token-service/internal/usecase"
)

const (
	// AccountIDKey is the context key for the authenticated account id.
	AccountIDKey = "account_id"
	claimsKey    = "claims"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error string `json:"error"`
}

// RequireAuth validates the Authorization header and extracts account claims
func RequireAuth(authService *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				ErrorResponse{Error: "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				ErrorResponse{Error: "invalid authorization format: expected 'Bearer <token>'"})
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				ErrorResponse{Error: "missing access token"})
			return
		}

		claims, err := authService.ParseAccessToken(token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrExpiredAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					ErrorResponse{Error: "access token expired"})
			case errors.Is(err, usecase.ErrInvalidAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					ErrorResponse{Error: "invalid access token"})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					ErrorResponse{Error: "authentication failed"})
			}
			return
		}

		c.Set(AccountIDKey, claims.Subject)
		c.Set(claimsKey, claims)

		c.Next()
	}
}

// GetAuthenticatedAccountID retrieves the account id from context (helper for handlers)
func GetAuthenticatedAccountID(c *gin.Context) (string, bool) {
	accountID, exists := c.Get(AccountIDKey)
	if !exists {
		return "", false
	}

	if id, ok := accountID.(string); ok && id != "" {
		return id, true
	}

	return "", false
}

// GetClaims retrieves the parsed access token claims from context.
func GetClaims(c *gin.Context) (*usecase.AccessTokenClaims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}

	claims, ok := value.(*usecase.AccessTokenClaims)
	return claims, ok
}
