package handlers

import (
	"strings"

	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AdminSettingsHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewAdminSettingsHandler(db *gorm.DB, audit *services.AuditService) *AdminSettingsHandler {
	return &AdminSettingsHandler{DB: db, Audit: audit}
}

func (h *AdminSettingsHandler) List(c *fiber.Ctx) error {
	query := h.DB.Model(&models.SystemSetting{})
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category = ?", category)
	}

	var settings []models.SystemSetting
	if err := query.Order("key ASC").Find(&settings).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing settings")
	}

	values := make(map[string]string, len(settings))
	for _, setting := range settings {
		values[setting.Key] = setting.Value
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"settings": settings,
		"values":   values,
	})
}

type createSettingRequest struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Description *string `json:"description"`
	IsPublic    bool    `json:"isPublic"`
}

func (h *AdminSettingsHandler) Create(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	var req createSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		return utils.Error(c, fiber.StatusBadRequest, "key is required")
	}

	var existing int64
	if err := h.DB.Model(&models.SystemSetting{}).Where("key = ?", key).Count(&existing).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking key")
	}
	if existing > 0 {
		return utils.Error(c, fiber.StatusConflict, "setting already exists")
	}

	setting := models.SystemSetting{
		Key:         key,
		Value:       req.Value,
		Category:    models.SettingCategory(key),
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}
	if admin != nil {
		setting.UpdatedBy = &admin.ID
	}
	if err := h.DB.Create(&setting).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating setting")
	}

	if admin != nil {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.setting_create",
			ResourceType: "setting",
			Details:      map[string]interface{}{"key": key},
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusCreated, setting)
}

// BulkUpdate upserts a batch of key-value pairs in one call. Categories
// are derived from each key's prefix.
func (h *AdminSettingsHandler) BulkUpdate(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	var values map[string]string
	if err := c.BodyParser(&values); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(values) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no settings provided")
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}

			var setting models.SystemSetting
			err := tx.First(&setting, "key = ?", key).Error
			switch {
			case err == nil:
				updates := map[string]interface{}{"value": value}
				if admin != nil {
					updates["updated_by"] = admin.ID
				}
				if err := tx.Model(&setting).Updates(updates).Error; err != nil {
					return err
				}
			case err == gorm.ErrRecordNotFound:
				setting = models.SystemSetting{
					Key:      key,
					Value:    value,
					Category: models.SettingCategory(key),
				}
				if admin != nil {
					setting.UpdatedBy = &admin.ID
				}
				if err := tx.Create(&setting).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating settings")
	}

	if admin != nil {
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.settings_update",
			ResourceType: "setting",
			Details:      map[string]interface{}{"keys": keys},
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "settings updated"})
}

func (h *AdminSettingsHandler) Delete(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	key := strings.TrimSpace(c.Params("key"))
	if key == "" {
		return utils.Error(c, fiber.StatusBadRequest, "key is required")
	}

	result := h.DB.Delete(&models.SystemSetting{}, "key = ?", key)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting setting")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "setting not found")
	}

	if admin != nil {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.setting_delete",
			ResourceType: "setting",
			Details:      map[string]interface{}{"key": key},
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "setting deleted"})
}
