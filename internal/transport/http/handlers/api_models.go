package handlers

// ErrorResponse represents a generic error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// TokenRequest is the grant-dispatch payload. GrantType selects which of
// the remaining fields are read; unused fields are ignored.
type TokenRequest struct {
	GrantType        string `json:"grantType" binding:"required"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	RefreshToken     string `json:"refreshToken"`
	Provider         string `json:"provider"`
	AccessToken      string `json:"accessToken"`
	VerificationCode string `json:"verificationCode"`
}

// TokenResponse is returned when a grant resolves to a token pair.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// ChallengeResponse is returned when the credentials verified but the
// request cannot resolve to tokens yet.
type ChallengeResponse struct {
	RequiresTwoFactor bool `json:"requiresTwoFactor,omitempty"`
	RequiresExternal  bool `json:"requiresExternal,omitempty"`
	IsLockedOut       bool `json:"isLockedOut,omitempty"`
}

// RegisterRequest defines the password registration payload.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	Picture     string `json:"picture"`
	DateOfBirth string `json:"dateOfBirth"`
}

// ExternalRegisterRequest defines the provider-linked registration payload.
type ExternalRegisterRequest struct {
	Provider    string `json:"provider" binding:"required"`
	AccessToken string `json:"accessToken" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	Picture     string `json:"picture"`
	DateOfBirth string `json:"dateOfBirth"`
}

// RegisterResponse contains the created account's identifier.
type RegisterResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ForgotPasswordRequest asks for a reset code to be sent.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest redeems a reset code for a new password.
type ResetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TwoFactorSetupResponse hands the pending secret to the account owner.
type TwoFactorSetupResponse struct {
	Secret       string `json:"secret"`
	ProvisionURI string `json:"provisionUri"`
}

// TwoFactorCodeRequest carries the one-time code of enable and disable calls.
type TwoFactorCodeRequest struct {
	Code string `json:"code" binding:"required"`
}
