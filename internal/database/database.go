package database

import (
	"fmt"

	"github.com/cloudvault/backend/internal/config"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := Seed(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema for every entity.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Folder{},
		&models.File{},
		&models.FileTypePolicy{},
		&models.SystemSetting{},
		&models.UserSettings{},
		&models.AuditLog{},
		&models.AuditExportCursor{},
		&models.LoginHistory{},
		&models.QuotaHistory{},
	)
}

// Seed installs the bootstrap admin account and the default policies and
// settings. It only writes rows that do not exist yet.
func Seed(db *gorm.DB) error {
	if err := seedAdminUser(db); err != nil {
		return err
	}
	if err := seedFileTypePolicies(db); err != nil {
		return err
	}
	return seedSystemSettings(db)
}

func seedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:        "admin@cloudvault.local",
		PasswordHash: hash,
		Name:         "System Admin",
		Role:         models.UserRoleAdmin,
	}

	return db.Create(&admin).Error
}

func seedFileTypePolicies(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.FileTypePolicy{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []models.FileTypePolicy{
		{MimeType: "image/jpeg", Category: "image", IsAllowed: true, GeneratePreview: true},
		{MimeType: "image/png", Category: "image", IsAllowed: true, GeneratePreview: true},
		{MimeType: "application/pdf", Category: "document", IsAllowed: true, GeneratePreview: true},
		{MimeType: "text/plain", Category: "document", IsAllowed: true},
		{MimeType: "video/mp4", Category: "video", IsAllowed: true},
		{MimeType: "application/zip", Category: "archive", IsAllowed: true, ScanOnUpload: true},
	}

	return db.Create(&defaults).Error
}

func seedSystemSettings(db *gorm.DB) error {
	defaults := []models.SystemSetting{
		{Key: "files.trash_retention_days", Value: "30", Category: "files"},
		{Key: "files.max_file_size_mb", Value: "100", Category: "files"},
		{Key: "storage.default_quota_gb", Value: "10", Category: "storage"},
		{Key: "registration.enabled", Value: "true", Category: "registration", IsPublic: true},
	}

	for _, setting := range defaults {
		var count int64
		if err := db.Model(&models.SystemSetting{}).Where("key = ?", setting.Key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		row := setting
		if err := db.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
