package services

import (
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/cloudvault/backend/internal/database"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/pkg/logger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:?_pragma=foreign_keys(1)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	return db
}

func createQuotaUser(t *testing.T, db *gorm.DB, quota, used int64) *models.User {
	t.Helper()

	user := &models.User{
		Email:             "quota@example.com",
		PasswordHash:      "x",
		Name:              "Quota User",
		Role:              models.UserRoleUser,
		AccountStatus:     models.AccountStatusActive,
		StorageQuotaBytes: quota,
		UsedStorageBytes:  used,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	return user
}
