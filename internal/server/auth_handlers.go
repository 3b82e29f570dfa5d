package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avenika/study-helper/internal/auth"
	"github.com/avenika/study-helper/internal/storage"
)

// refreshCookieMaxAge keeps the refresh cookie for two weeks.
const refreshCookieMaxAge = 14 * 24 * 60 * 60

type authHandler struct {
	auth *auth.Service
}

func (h *authHandler) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	_, creds, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, storage.ErrAlreadyExists) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Registration failed"})
		return
	}
	h.issue(c, creds)
}

func (h *authHandler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	_, creds, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	h.issue(c, creds)
}

func (h *authHandler) google(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	_, creds, err := h.auth.GoogleLogin(c.Request.Context(), req.Token)
	if errors.Is(err, auth.ErrInvalidToken) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Google token"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Google sign-in failed"})
		return
	}
	h.issue(c, creds)
}

func (h *authHandler) refresh(c *gin.Context) {
	refreshToken, err := c.Cookie("refresh_token")
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No refresh token provided"})
		return
	}

	access, err := h.auth.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access})
}

// issue sends the access token in the body and the refresh token as an
// httpOnly cookie, the way the web client expects.
func (h *authHandler) issue(c *gin.Context, creds *auth.Credentials) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("refresh_token", creds.RefreshToken, refreshCookieMaxAge, "/", "", true, true)
	c.JSON(http.StatusOK, gin.H{"access_token": creds.AccessToken, "token_type": "bearer"})
}
