package middleware

import (
	"net/http"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/response"
	"github.com/gin-gonic/gin"
)

// RequireRole admits only tokens carrying role. Must run after RequireJWT.
func RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if claims.Role == role {
			c.Next()
			return
		}

		switch role {
		case model.RoleTeacher:
			response.AbortFail(c, http.StatusForbidden, response.ErrTeacherAccessOnly)
		case model.RoleStudent:
			response.AbortFail(c, http.StatusForbidden, response.ErrStudentAccessOnly)
		default:
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
		}
	}
}
