package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/utils"
)

func init() {
	utils.SetJWTSecret("test-secret")
}

func TestCreateAdminIfNotExists(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1})

	cfg := &config.AdminConfig{Email: " Admin@Example.com ", Password: "s3cret-pass"}
	if err := svc.CreateAdminIfNotExists(cfg); err != nil {
		t.Fatalf("CreateAdminIfNotExists() error = %v", err)
	}
	// Second call must not create or overwrite anything.
	if err := svc.CreateAdminIfNotExists(&config.AdminConfig{Email: "other@example.com", Password: "x"}); err != nil {
		t.Fatalf("CreateAdminIfNotExists() second call error = %v", err)
	}

	var admins []models.AdminCredential
	db.Find(&admins)
	if len(admins) != 1 {
		t.Fatalf("admin count = %d, expected 1", len(admins))
	}
	if admins[0].Email != "admin@example.com" {
		t.Errorf("Email = %q, expected %q", admins[0].Email, "admin@example.com")
	}
	if admins[0].PasswordHash == "s3cret-pass" {
		t.Error("password must be stored hashed")
	}
}

func TestCreateAdminIfNotExists_RequiresCredentials(t *testing.T) {
	svc := NewAuthService(newTestDB(t), &config.JWTConfig{ExpireHour: 1})
	err := svc.CreateAdminIfNotExists(&config.AdminConfig{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error = %v, expected ErrValidation", err)
	}
}

func TestLogin(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 2})
	if err := svc.CreateAdminIfNotExists(&config.AdminConfig{Email: "admin@example.com", Password: "correct-horse"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "admin@example.com", "correct-horse", nil},
		{"case insensitive email", "ADMIN@example.com", "correct-horse", nil},
		{"wrong password", "admin@example.com", "nope", ErrInvalidCredentials},
		{"unknown email", "ghost@example.com", "correct-horse", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Login(&LoginRequest{Email: tt.email, Password: tt.password})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Login() error = %v, expected %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}

			claims, err := utils.ParseToken(result.Token)
			if err != nil {
				t.Fatalf("ParseToken() error = %v", err)
			}
			if claims.Email != "admin@example.com" {
				t.Errorf("claims.Email = %q, expected %q", claims.Email, "admin@example.com")
			}
			if claims.Role != utils.RoleAdmin {
				t.Errorf("claims.Role = %q, expected %q", claims.Role, utils.RoleAdmin)
			}
			if result.Admin.LastLogin == nil {
				t.Error("LastLogin should be set")
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1})
	if err := svc.CreateAdminIfNotExists(&config.AdminConfig{Email: "admin@example.com", Password: "old-password"}); err != nil {
		t.Fatal(err)
	}
	var admin models.AdminCredential
	db.First(&admin)

	if err := svc.ChangePassword(admin.ID, &ChangePasswordRequest{OldPassword: "wrong", NewPassword: "new-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ChangePassword() with wrong old password error = %v", err)
	}
	if err := svc.ChangePassword(admin.ID, &ChangePasswordRequest{OldPassword: "old-password", NewPassword: "new-password"}); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.Login(&LoginRequest{Email: "admin@example.com", Password: "new-password"}); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
}

func TestChangePassword_Rules(t *testing.T) {
	tests := []struct {
		name        string
		newPassword string
	}{
		{"too short", "short"},
		{"beyond bcrypt limit", strings.Repeat("p", utils.MaxPasswordBytes+1)},
		{"unchanged", "old-password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1})
			if err := svc.CreateAdminIfNotExists(&config.AdminConfig{Email: "admin@example.com", Password: "old-password"}); err != nil {
				t.Fatal(err)
			}
			var admin models.AdminCredential
			db.First(&admin)

			err := svc.ChangePassword(admin.ID, &ChangePasswordRequest{OldPassword: "old-password", NewPassword: tt.newPassword})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ChangePassword() error = %v, expected ErrValidation", err)
			}
			if _, err := svc.Login(&LoginRequest{Email: "admin@example.com", Password: "old-password"}); err != nil {
				t.Errorf("old password should still work, Login() error = %v", err)
			}
		})
	}
}

func TestCreateAdminIfNotExists_OverlongPassword(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1})

	err := svc.CreateAdminIfNotExists(&config.AdminConfig{
		Email:    "admin@example.com",
		Password: strings.Repeat("p", utils.MaxPasswordBytes+1),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, expected ErrValidation", err)
	}
	var count int64
	db.Model(&models.AdminCredential{}).Count(&count)
	if count != 0 {
		t.Errorf("admin count = %d, expected 0", count)
	}
}
