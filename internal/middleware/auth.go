package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/utils"
	"github.com/regdesk/backend/pkg/response"
)

const (
	ContextAdminID    = "admin_id"
	ContextAdminEmail = "admin_email"
	ContextRole       = "role"
)

// SessionCookie carries the access token for browser clients.
const SessionCookie = "regdesk_session"

// AuthRequired is a middleware that checks for a valid JWT token, taken
// from the Authorization header or the session cookie.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Abort(c, response.NewUnauthorized("authorization required"))
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			response.Abort(c, response.NewUnauthorized("invalid or expired token"))
			return
		}

		c.Set(ContextAdminID, claims.AdminID)
		c.Set(ContextAdminEmail, claims.Email)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

// AdminRequired is a middleware that checks for admin role
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists || role != utils.RoleAdmin {
			response.Abort(c, response.NewForbidden("admin access required"))
			return
		}
		c.Next()
	}
}

// GetAdminID gets the current admin ID from context
func GetAdminID(c *gin.Context) uint {
	if id, exists := c.Get(ContextAdminID); exists {
		return id.(uint)
	}
	return 0
}

// GetAdminEmail gets the current admin email from context
func GetAdminEmail(c *gin.Context) string {
	if email, exists := c.Get(ContextAdminEmail); exists {
		return email.(string)
	}
	return ""
}

// GetRole gets the current role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}
