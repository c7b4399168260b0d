package models

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/regdesk/backend/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Defaults seeded into event_settings on first start. The calendar
// renderer falls back to the same values when a setting is blank.
var DefaultEventSettings = map[string]string{
	SettingEventDate:    "2026-03-14",
	SettingEventTime:    "09:00 - 17:00",
	SettingEventVenue:   "Venue to be announced",
	SettingEventAddress: "",
	SettingPaymentQRURL: "",
}

func InitDB(cfg *config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open connects to the configured database without touching the global.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(parseLogLevel(cfg.LogLevel)),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate creates or updates every table the application owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AdminCredential{},
		&Team{},
		&Member{},
		&EventSetting{},
		&AuditLog{},
		&ActivityLog{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData creates the event settings rows if they do not exist.
// Existing values are never overwritten.
func SeedDefaultData() error {
	return SeedEventSettings(DB)
}

func SeedEventSettings(db *gorm.DB) error {
	for _, key := range EventSettingKeys {
		setting := EventSetting{Key: key, Value: DefaultEventSettings[key]}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error; err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}
