package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phishguard/aegis/service"
)

// AuthHandlers contains the HTTP handlers for the session endpoints.
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Register handles POST /users/register.
func (h *AuthHandlers) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.authService.Register(c.Request.Context(), req.Username, req.Email, req.Password); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "user registered; verification email sent", nil)
}

// Login handles POST /users/login.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, pair, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "logged in", gin.H{
		"user":         user,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout handles POST /users/logout (protected).
func (h *AuthHandlers) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), userID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "logged out", nil)
}

// RefreshAccessToken handles POST /users/refresh-access-token. Rotation is
// on-every-use, so the response always carries a new refresh token as well.
func (h *AuthHandlers) RefreshAccessToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "access token refreshed", gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// ChangePassword handles POST /users/change-password (protected).
func (h *AuthHandlers) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "password changed", nil)
}

// ForgotPassword handles POST /users/forgot-password. The response is the
// same whether or not the account exists.
func (h *AuthHandlers) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "if the account exists, a reset email has been sent", nil)
}

// ResetPassword handles POST /users/reset-password/:token.
func (h *AuthHandlers) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "password reset", nil)
}

// VerifyEmail handles GET /users/verify-email/:token.
func (h *AuthHandlers) VerifyEmail(c *gin.Context) {
	if err := h.authService.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "email verified", nil)
}

// ResendVerification handles POST /users/resend-email-verification (protected).
func (h *AuthHandlers) ResendVerification(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.authService.ResendVerification(c.Request.Context(), userID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "verification email sent", nil)
}

// CurrentUser handles POST /users/current-user (protected).
func (h *AuthHandlers) CurrentUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.authService.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "current user", gin.H{"user": user})
}

// Healthcheck handles GET /healthcheck.
func (h *AuthHandlers) Healthcheck(c *gin.Context) {
	respondOK(c, http.StatusOK, "ok", nil)
}
