package handler

import (
	"net/http"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/middleware"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/response"
	"github.com/gin-gonic/gin"
)

// AuthHandler exposes the identity behind a token. Login and registration
// live in the platform's auth service.
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id": claims.UserID,
		"name":    claims.Name,
		"role":    claims.Role,
	})
}
