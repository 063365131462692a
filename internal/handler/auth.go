package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"arbscan/internal/auth"
	"arbscan/internal/config"
)

type AuthHandler struct {
	JWT    auth.JWT
	Config config.AuthConfig
}

func (h *AuthHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/auth/token", h.issueToken)
}

type tokenRequest struct {
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "api_key and api_secret required", nil)
		return
	}
	keyOK := subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.Config.APIKey)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(req.APISecret), []byte(h.Config.APISecret)) == 1
	if h.Config.APIKey == "" || !keyOK || !secretOK {
		Error(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	token, expiresAt, err := h.JWT.Sign(auth.Claims{ClientID: req.APIKey, Role: "client"})
	if err != nil {
		Error(c, http.StatusInternalServerError, "token signing failed", nil)
		return
	}
	Ok(c, tokenResponse{Token: token, ExpiresAt: expiresAt}, nil)
}
