package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/middleware"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/response"
	"gorm.io/gorm"
)

type AuthHandler struct {
	authService  *services.AuthService
	cookieSecure bool
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService:  services.NewAuthService(db, &cfg.JWT),
		cookieSecure: cfg.Server.CookieSecure,
	}
}

// Login handles admin login. The token is returned in the body and as an
// HttpOnly session cookie.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		handleError(c, err)
		return
	}

	maxAge := int(time.Until(resp.ExpireAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, resp.Token, maxAge, "/", "", h.cookieSecure, true)
	response.Success(c, resp)
}

// Logout clears the session cookie.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cookieSecure, true)
	response.Success(c, gin.H{"message": "logged out successfully"})
}

// GetCurrentAdmin returns the logged-in administrator
// GET /api/auth/me
func (h *AuthHandler) GetCurrentAdmin(c *gin.Context) {
	admin, err := h.authService.GetAdminByID(middleware.GetAdminID(c))
	if err != nil {
		response.NotFound(c, "admin not found")
		return
	}
	response.Success(c, admin)
}

// ChangePassword
// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.authService.ChangePassword(middleware.GetAdminID(c), &req); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "password changed"})
}

// CreateAdminIfNotExists creates the bootstrap administrator
func (h *AuthHandler) CreateAdminIfNotExists(cfg *config.AdminConfig) error {
	return h.authService.CreateAdminIfNotExists(cfg)
}
