package handlers

import (
	"fmt"
	"strings"

	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/internal/storage"
	"github.com/cloudvault/backend/pkg/fileutil"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsersHandler serves the signed-in user's own profile, settings,
// password, avatar and login history.
type UsersHandler struct {
	DB      *gorm.DB
	Storage *storage.LocalStorage
	Audit   *services.AuditService
}

func NewUsersHandler(db *gorm.DB, store *storage.LocalStorage, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, Storage: store, Audit: audit}
}

// loadSettings fetches the user's settings row, creating it with
// defaults on first access.
func (h *UsersHandler) loadSettings(userID uuid.UUID) (*models.UserSettings, error) {
	var settings models.UserSettings
	err := h.DB.First(&settings, "user_id = ?", userID).Error
	if err == nil {
		return &settings, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	settings = models.UserSettings{
		UserID:              userID,
		Theme:               "system",
		Locale:              "en",
		EmailNotifications:  true,
		UploadNotifications: true,
		ShowStorageUsage:    true,
		DefaultFolderView:   "grid",
		TrashRetentionDays:  30,
	}
	if err := h.DB.Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func (h *UsersHandler) GetSettings(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	settings, err := h.loadSettings(currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading settings")
	}

	return utils.Success(c, fiber.StatusOK, settings)
}

type updateSettingsRequest struct {
	Theme               *string `json:"theme"`
	Locale              *string `json:"locale"`
	EmailNotifications  *bool   `json:"emailNotifications"`
	UploadNotifications *bool   `json:"uploadNotifications"`
	PublicProfile       *bool   `json:"publicProfile"`
	ShowStorageUsage    *bool   `json:"showStorageUsage"`
	DefaultFolderView   *string `json:"defaultFolderView"`
	TrashRetentionDays  *int    `json:"trashRetentionDays"`
}

func (h *UsersHandler) UpdateSettings(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	settings, err := h.loadSettings(currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading settings")
	}

	updates := map[string]interface{}{}
	if req.Theme != nil {
		switch *req.Theme {
		case "system", "light", "dark":
			updates["theme"] = *req.Theme
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid theme")
		}
	}
	if req.Locale != nil {
		value := strings.TrimSpace(*req.Locale)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "locale cannot be empty")
		}
		updates["locale"] = value
	}
	if req.EmailNotifications != nil {
		updates["email_notifications"] = *req.EmailNotifications
	}
	if req.UploadNotifications != nil {
		updates["upload_notifications"] = *req.UploadNotifications
	}
	if req.PublicProfile != nil {
		updates["public_profile"] = *req.PublicProfile
	}
	if req.ShowStorageUsage != nil {
		updates["show_storage_usage"] = *req.ShowStorageUsage
	}
	if req.DefaultFolderView != nil {
		switch *req.DefaultFolderView {
		case "grid", "list":
			updates["default_folder_view"] = *req.DefaultFolderView
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid defaultFolderView")
		}
	}
	if req.TrashRetentionDays != nil {
		if *req.TrashRetentionDays < 1 || *req.TrashRetentionDays > 365 {
			return utils.Error(c, fiber.StatusBadRequest, "trashRetentionDays must be between 1 and 365")
		}
		updates["trash_retention_days"] = *req.TrashRetentionDays
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(settings).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating settings")
	}

	return utils.Success(c, fiber.StatusOK, settings)
}

type updateProfileRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Locale *string `json:"locale"`
}

func (h *UsersHandler) UpdateProfile(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		value := strings.TrimSpace(*req.Name)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = value
	}
	if req.Email != nil {
		value := strings.ToLower(strings.TrimSpace(*req.Email))
		if !emailPattern.MatchString(value) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid email address")
		}
		if value != currentUser.Email {
			var taken int64
			if err := h.DB.Model(&models.User{}).Where("email = ?", value).Count(&taken).Error; err != nil {
				return utils.Error(c, fiber.StatusInternalServerError, "failed checking email")
			}
			if taken > 0 {
				return utils.Error(c, fiber.StatusBadRequest, "email already in use")
			}
		}
		updates["email"] = value
	}
	if req.Locale != nil {
		value := strings.TrimSpace(*req.Locale)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "locale cannot be empty")
		}
		updates["locale"] = value
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(currentUser).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "user.profile_update",
		ResourceType: "user",
		ResourceID:   &currentUser.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, currentUser)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !utils.CheckPassword(req.CurrentPassword, currentUser.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "current password is incorrect")
	}
	if problems := validatePassword(req.NewPassword); len(problems) > 0 {
		return utils.ValidationError(c, map[string][]string{"newPassword": problems})
	}
	if req.NewPassword != req.ConfirmPassword {
		return utils.Error(c, fiber.StatusBadRequest, "passwords do not match")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(currentUser).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.InfoWithUser(currentUser.ID.String(), "password_changed", nil)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "user.password_change",
		ResourceType: "user",
		ResourceID:   &currentUser.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password changed"})
}

const maxAvatarSize = 5 * 1024 * 1024

var allowedAvatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// avatarStorageKey extracts the storage key from a stored avatar URL.
// Returns "" for external URLs that do not point at local storage.
func avatarStorageKey(avatarURL string) string {
	key := strings.TrimPrefix(avatarURL, "/uploads/")
	if key == avatarURL || !strings.HasPrefix(key, "avatars/") {
		return ""
	}
	return key
}

func (h *UsersHandler) UploadAvatar(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "image is required")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !allowedAvatarTypes[contentType] {
		return utils.Error(c, fiber.StatusBadRequest, "avatar must be a JPG, PNG or WebP image")
	}
	if fileHeader.Size <= 0 || fileHeader.Size > maxAvatarSize {
		return utils.Error(c, fiber.StatusBadRequest,
			fmt.Sprintf("avatar must be between 1 byte and %d bytes", int64(maxAvatarSize)))
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded image")
	}
	defer stream.Close()

	tempPath, _, err := h.Storage.Stage(stream)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed writing image")
	}

	storageKey := "avatars/" + fileutil.UniqueFilename(fileutil.SanitizeFilename(fileHeader.Filename))
	avatarURL := "/uploads/" + storageKey

	previousKey := ""
	if currentUser.AvatarURL != nil {
		previousKey = avatarStorageKey(*currentUser.AvatarURL)
	}

	if err := h.Storage.Commit(tempPath, storageKey); err != nil {
		h.Storage.Discard(tempPath)
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing image")
	}
	if err := h.DB.Model(currentUser).Update("avatar_url", avatarURL).Error; err != nil {
		// The row still points at the previous avatar, so the new bytes
		// are the ones to drop.
		_ = h.Storage.Delete(storageKey)
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating avatar")
	}

	if previousKey != "" {
		if err := h.Storage.Delete(previousKey); err != nil {
			logger.Error("avatar_cleanup_failed", err, map[string]interface{}{
				"storage_key": previousKey,
			})
		}
	}

	logger.InfoWithUser(currentUser.ID.String(), "avatar_updated", map[string]interface{}{
		"avatar_url": avatarURL,
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "user.avatar_update",
		ResourceType: "user",
		ResourceID:   &currentUser.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":      currentUser,
		"avatarURL": avatarURL,
	})
}

func (h *UsersHandler) LoginHistory(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c)
	query := h.DB.Model(&models.LoginHistory{}).Where("user_id = ?", currentUser.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting login history")
	}

	var entries []models.LoginHistory
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&entries).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing login history")
	}

	return utils.Paginated(c, entries, p.Page, p.Limit, total)
}
