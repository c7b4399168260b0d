package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/utils"
	"github.com/regdesk/backend/pkg/logger"
	"gorm.io/gorm"
)

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{
		db:        db,
		jwtConfig: jwtCfg,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token    string                  `json:"token"`
	ExpireAt time.Time               `json:"expire_at"`
	Admin    *models.AdminCredential `json:"admin"`
}

// Login checks the email and password and issues an access token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(req *LoginRequest) (*LoginResult, error) {
	email := normalizeEmail(req.Email)

	var admin models.AdminCredential
	if err := s.db.Where("email = ?", email).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !utils.CheckPassword(req.Password, admin.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	hours := s.jwtConfig.ExpireHour
	if hours <= 0 {
		hours = 12
	}
	token, err := utils.GenerateToken(admin.ID, admin.Email, utils.RoleAdmin, hours)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	admin.LastLogin = &now
	if err := s.db.Model(&admin).Update("last_login", now).Error; err != nil {
		logger.Warnf("[Auth] Failed to update last login for %s: %v", admin.Email, err)
	}

	return &LoginResult{
		Token:    token,
		ExpireAt: now.Add(time.Duration(hours) * time.Hour),
		Admin:    &admin,
	}, nil
}

func (s *AuthService) GetAdminByID(id uint) (*models.AdminCredential, error) {
	var admin models.AdminCredential
	if err := s.db.First(&admin, id).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

// CreateAdminIfNotExists creates the bootstrap administrator when the
// credential table is empty. Existing credentials are never touched.
func (s *AuthService) CreateAdminIfNotExists(cfg *config.AdminConfig) error {
	var count int64
	if err := s.db.Model(&models.AdminCredential{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	email := normalizeEmail(cfg.Email)
	if email == "" || cfg.Password == "" {
		return fmt.Errorf("%w: bootstrap admin email and password are required", ErrValidation)
	}

	hashedPassword, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return fmt.Errorf("%w: bootstrap admin: %v", ErrValidation, err)
	}
	if utils.ValidatePassword(cfg.Password) != nil {
		logger.Warnf("[Auth] Bootstrap admin password is shorter than %d characters, change it after first login", utils.MinPasswordLength)
	}

	admin := models.AdminCredential{
		Email:        email,
		PasswordHash: hashedPassword,
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return err
	}
	logger.Infof("[Auth] Bootstrap admin %s created", email)
	return nil
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func (s *AuthService) ChangePassword(adminID uint, req *ChangePasswordRequest) error {
	admin, err := s.GetAdminByID(adminID)
	if err != nil {
		return errors.New("admin not found")
	}

	if !utils.CheckPassword(req.OldPassword, admin.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.NewPassword == req.OldPassword {
		return fmt.Errorf("%w: new password must differ from the current one", ErrValidation)
	}

	hashedPassword, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.Model(admin).Update("password_hash", hashedPassword).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
