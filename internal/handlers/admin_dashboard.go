package handlers

import (
	"time"

	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AdminDashboardHandler struct {
	DB *gorm.DB
}

func NewAdminDashboardHandler(db *gorm.DB) *AdminDashboardHandler {
	return &AdminDashboardHandler{DB: db}
}

type topUserRow struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	UsedStorageBytes int64     `json:"usedStorageBytes"`
}

func (h *AdminDashboardHandler) Stats(c *fiber.Ctx) error {
	var totalUsers, activeUsers, totalFiles int64
	if err := h.DB.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}
	if err := h.DB.Model(&models.User{}).
		Where("account_status = ?", models.AccountStatusActive).
		Count(&activeUsers).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting active users")
	}
	if err := h.DB.Model(&models.File{}).Count(&totalFiles).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting files")
	}

	var storageUsed int64
	if err := h.DB.Model(&models.User{}).
		Select("COALESCE(SUM(used_storage_bytes), 0)").
		Scan(&storageUsed).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed summing storage")
	}

	weekAgo := time.Now().UTC().AddDate(0, 0, -7)

	var newUsers int64
	if err := h.DB.Model(&models.User{}).
		Where("created_at > ?", weekAgo).
		Count(&newUsers).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting new users")
	}

	var recentLogins int64
	if err := h.DB.Model(&models.LoginHistory{}).
		Where("status = ? AND created_at > ?", models.LoginStatusSuccess, weekAgo).
		Count(&recentLogins).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting recent logins")
	}

	var topUsers []topUserRow
	if err := h.DB.Model(&models.User{}).
		Select("id", "email", "name", "used_storage_bytes").
		Order("used_storage_bytes DESC").
		Limit(5).
		Scan(&topUsers).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing top users")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"totalUsers":       totalUsers,
		"activeUsers":      activeUsers,
		"totalFiles":       totalFiles,
		"storageUsedBytes": storageUsed,
		"newUsersLast7d":   newUsers,
		"loginsLast7d":     recentLogins,
		"topUsersByUsage":  topUsers,
	})
}
