package services

import (
	"strconv"
	"time"

	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/storage"
	"github.com/cloudvault/backend/pkg/logger"
	"gorm.io/gorm"
)

const defaultTrashRetentionDays = 30

// TrashService permanently removes files that have sat in the trash
// longer than the configured retention window. Quota was already
// released when the file was trashed, so purging only touches rows and
// bytes.
type TrashService struct {
	DB      *gorm.DB
	Storage *storage.LocalStorage
}

func NewTrashService(db *gorm.DB, store *storage.LocalStorage) *TrashService {
	return &TrashService{DB: db, Storage: store}
}

// StartPurger runs PurgeExpired on a fixed interval in the background.
func (s *TrashService) StartPurger(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			if _, err := s.PurgeExpired(); err != nil {
				logger.Error("trash_purge_failed", err, nil)
			}
		}
	}()

	logger.Info("trash_purger_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// PurgeExpired hard-deletes every file whose trash retention has lapsed
// and returns how many were removed.
func (s *TrashService) PurgeExpired() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays())

	var expired []models.File
	if err := s.DB.Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Find(&expired).Error; err != nil {
		return 0, err
	}

	purged := 0
	for _, file := range expired {
		if err := s.Storage.Delete(file.StorageKey); err != nil {
			logger.Error("trash_purge_blob_failed", err, map[string]interface{}{
				"file_id":     file.ID.String(),
				"storage_key": file.StorageKey,
			})
			continue
		}
		if err := s.DB.Unscoped().Delete(&models.File{}, "id = ?", file.ID).Error; err != nil {
			logger.Error("trash_purge_row_failed", err, map[string]interface{}{
				"file_id": file.ID.String(),
			})
			continue
		}
		purged++
	}

	if purged > 0 {
		logger.Info("trash_purge_complete", map[string]interface{}{
			"purged": purged,
		})
	}
	return purged, nil
}

func (s *TrashService) retentionDays() int {
	var setting models.SystemSetting
	if err := s.DB.First(&setting, "key = ?", "files.trash_retention_days").Error; err != nil {
		return defaultTrashRetentionDays
	}
	days, err := strconv.Atoi(setting.Value)
	if err != nil || days < 1 {
		return defaultTrashRetentionDays
	}
	return days
}
