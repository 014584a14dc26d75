package services

import (
	"errors"

	"github.com/cloudvault/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrQuotaExceeded is returned when a reservation would push usage past
// the account's quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// QuotaService tracks per-account storage usage. Reservations are a
// single conditional UPDATE so two concurrent uploads can never both
// sneak past the limit.
type QuotaService struct {
	DB *gorm.DB
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{DB: db}
}

// Reserve adds size bytes to the user's usage if, and only if, the
// result stays within quota. Returns ErrQuotaExceeded otherwise.
func (s *QuotaService) Reserve(db *gorm.DB, userID uuid.UUID, size int64) error {
	if db == nil {
		db = s.DB
	}

	result := db.Model(&models.User{}).
		Where("id = ? AND used_storage_bytes + ? <= storage_quota_bytes", userID, size).
		Update("used_storage_bytes", gorm.Expr("used_storage_bytes + ?", size))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// Release subtracts size bytes from the user's usage, flooring at zero
// so a double release cannot drive the counter negative.
func (s *QuotaService) Release(db *gorm.DB, userID uuid.UUID, size int64) error {
	if db == nil {
		db = s.DB
	}

	return db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("used_storage_bytes",
			gorm.Expr("CASE WHEN used_storage_bytes >= ? THEN used_storage_bytes - ? ELSE 0 END", size, size)).
		Error
}

// Recalculate resets the counter to the sum of the user's non-deleted
// file sizes. Used by admin tooling when usage has drifted.
func (s *QuotaService) Recalculate(userID uuid.UUID) (int64, error) {
	var total int64
	err := s.DB.Model(&models.File{}).
		Where("owner_id = ?", userID).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}

	err = s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("used_storage_bytes", total).Error
	return total, err
}
