package handler

import (
	"errors"
	"net/http"

	"adminauth/internal/middleware"
	"adminauth/internal/rbac"
	"adminauth/internal/service"
	"adminauth/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService service.AuthService
}

func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRoutes binds the public flows under public (which should carry the rate
// limiter) and the profile route under authed.
func (h *AuthHandler) RegisterRoutes(public, authed *gin.RouterGroup, gate *middleware.Gate) {
	auth := public.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.POST("/verify-email", h.VerifyEmail)
		auth.POST("/resend-verification", h.ResendVerification)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
	}

	authed.GET("/auth/me", gate.RequirePermission(rbac.PermProfileView), h.Me)
}

// Register creates an account and mails a verification code
// @Summary      Register
// @Description  Creates an account with the default role, or reactivates a deleted account with the same email or username. A verification code is mailed.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterRequest  true  "Registration"
// @Success      201      {object}  response.Response{data=service.RegisterResult}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	msg := "Registration successful. Check your email for the verification code."
	if res.Reactivated {
		msg = "Account reactivated."
	}
	response.OK(c, http.StatusCreated, msg, res)
}

// Login authenticates by email or username
// @Summary      Login
// @Description  Returns an access/refresh token pair. Unknown accounts and wrong passwords produce the same answer.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Credentials"
// @Success      200      {object}  response.Response{data=service.LoginResponse}
// @Failure      401      {object}  response.Response
// @Failure      403      {object}  response.Response  "Deleted, inactive or unverified account"
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Login successful", res)
}

// Refresh rotates a refresh token
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshTokenRequest  true  "Refresh token"
// @Success      200      {object}  response.Response{data=token.Pair}
// @Failure      401      {object}  response.Response
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req service.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Token refreshed", pair)
}

// Logout revokes a refresh token
// @Summary      Logout
// @Description  Revokes the refresh token. Always succeeds for tokens that are already invalid.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshTokenRequest  true  "Refresh token"
// @Success      200      {object}  response.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req service.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	err := h.authService.Logout(c.Request.Context(), req.RefreshToken)
	if err != nil && !errors.Is(err, service.ErrInvalidRefreshToken) {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Logged out successfully", nil)
}

// VerifyEmail redeems a verification challenge
// @Summary      Verify email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.VerifyEmailRequest  true  "Challenge token and code"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req service.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), req.Token, req.OTP); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Email verified successfully", nil)
}

// ResendVerification mails a fresh verification code
// @Summary      Resend verification
// @Description  Always accepted, whether or not the address is registered.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.EmailRequest  true  "Email"
// @Success      202      {object}  response.Response
// @Router       /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req service.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authService.ResendVerification(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusAccepted, "If the address is registered and unverified, a new code has been sent", nil)
}

// ForgotPassword mails a password reset code
// @Summary      Forgot password
// @Description  Always accepted, whether or not the address is registered.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.EmailRequest  true  "Email"
// @Success      202      {object}  response.Response
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req service.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusAccepted, "If the address is registered, a reset code has been sent", nil)
}

// ResetPassword redeems a reset challenge and sets a new password
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ResetPasswordRequest  true  "Challenge and new password"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req service.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.OTP, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Password has been reset", nil)
}

// Me returns the caller's profile and granted permission keys
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.ProfileResponse}
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		response.Fail(c, http.StatusUnauthorized, "Authentication required", "MISSING_TOKEN")
		return
	}

	profile, err := h.authService.Me(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", profile)
}
