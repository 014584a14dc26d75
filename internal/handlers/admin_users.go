package handlers

import (
	"strings"
	"time"

	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/internal/storage"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AdminUsersHandler struct {
	DB           *gorm.DB
	Storage      *storage.LocalStorage
	Audit        *services.AuditService
	DefaultQuota int64
}

func NewAdminUsersHandler(db *gorm.DB, store *storage.LocalStorage, audit *services.AuditService, defaultQuota int64) *AdminUsersHandler {
	if defaultQuota <= 0 {
		defaultQuota = models.DefaultStorageQuotaBytes
	}
	return &AdminUsersHandler{DB: db, Storage: store, Audit: audit, DefaultQuota: defaultQuota}
}

type adminUserView struct {
	models.User
	UtilizationPct float64 `json:"utilizationPct"`
	FileCount      int64   `json:"fileCount"`
	FolderCount    int64   `json:"folderCount"`
}

func (h *AdminUsersHandler) buildView(user models.User) (adminUserView, error) {
	view := adminUserView{User: user}
	if user.StorageQuotaBytes > 0 {
		view.UtilizationPct = float64(user.UsedStorageBytes) / float64(user.StorageQuotaBytes) * 100
	}
	if err := h.DB.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&view.FileCount).Error; err != nil {
		return view, err
	}
	if err := h.DB.Model(&models.Folder{}).Where("owner_id = ?", user.ID).Count(&view.FolderCount).Error; err != nil {
		return view, err
	}
	return view, nil
}

func (h *AdminUsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.User{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		value := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", value, value)
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("account_status = ?", status)
	}
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	views := make([]adminUserView, 0, len(users))
	for _, user := range users {
		view, err := h.buildView(user)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed building user summary")
		}
		views = append(views, view)
	}

	return utils.Paginated(c, views, p.Page, p.Limit, total)
}

type adminCreateUserRequest struct {
	Email             string           `json:"email"`
	Password          string           `json:"password"`
	Name              string           `json:"name"`
	Role              *models.UserRole `json:"role"`
	StorageQuotaBytes *int64           `json:"storageQuotaBytes"`
}

func (h *AdminUsersHandler) Create(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	var req adminCreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)

	details := map[string][]string{}
	if email == "" || !emailPattern.MatchString(email) {
		details["email"] = append(details["email"], "is not a valid email address")
	}
	if name == "" {
		details["name"] = append(details["name"], "is required")
	}
	if problems := validatePassword(req.Password); len(problems) > 0 {
		details["password"] = problems
	}
	if len(details) > 0 {
		return utils.ValidationError(c, details)
	}

	role := models.UserRoleUser
	if req.Role != nil {
		switch *req.Role {
		case models.UserRoleAdmin, models.UserRoleUser, models.UserRoleGuest:
			role = *req.Role
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
	}

	quota := h.DefaultQuota
	if req.StorageQuotaBytes != nil {
		if *req.StorageQuotaBytes <= 0 {
			return utils.Error(c, fiber.StatusBadRequest, "storageQuotaBytes must be positive")
		}
		quota = *req.StorageQuotaBytes
	}

	var existing int64
	if err := h.DB.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking email")
	}
	if existing > 0 {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	user := models.User{
		Email:             email,
		PasswordHash:      hash,
		Name:              name,
		Role:              role,
		AccountStatus:     models.AccountStatusActive,
		StorageQuotaBytes: quota,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	if admin != nil {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.user_create",
			ResourceType: "user",
			ResourceID:   &user.ID,
			Details:      map[string]interface{}{"email": email, "role": string(role)},
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusCreated, user)
}

func (h *AdminUsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	view, err := h.buildView(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed building user summary")
	}

	return utils.Success(c, fiber.StatusOK, view)
}

type adminUpdateUserRequest struct {
	Name  *string          `json:"name"`
	Email *string          `json:"email"`
	Role  *models.UserRole `json:"role"`
}

func (h *AdminUsersHandler) Update(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req adminUpdateUserRequest
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
		var taken int64
		if err := h.DB.Model(&models.User{}).Where("email = ? AND id <> ?", value, userID).Count(&taken).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed checking email")
		}
		if taken > 0 {
			return utils.Error(c, fiber.StatusBadRequest, "email already in use")
		}
		updates["email"] = value
	}
	if req.Role != nil {
		switch *req.Role {
		case models.UserRoleAdmin, models.UserRoleUser, models.UserRoleGuest:
			updates["role"] = *req.Role
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	result := h.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated user")
	}

	if admin != nil {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.user_update",
			ResourceType: "user",
			ResourceID:   &user.ID,
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, user)
}

func (h *AdminUsersHandler) Delete(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if admin != nil && admin.ID == userID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot delete your own account")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	// Trashed rows are still physically present and the owner foreign
	// keys are enforced, so everything the user owns goes first, in the
	// same transaction as the user row.
	var files []models.File
	if err := h.DB.Unscoped().Where("owner_id = ?", userID).Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing user files")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("owner_id = ?", userID).Delete(&models.File{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", userID).Delete(&models.Folder{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserSettings{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	for _, file := range files {
		if err := h.Storage.Delete(file.StorageKey); err != nil {
			logger.Error("user_file_cleanup_failed", err, map[string]interface{}{
				"storage_key": file.StorageKey,
			})
		}
	}
	if user.AvatarURL != nil {
		if key := avatarStorageKey(*user.AvatarURL); key != "" {
			if err := h.Storage.Delete(key); err != nil {
				logger.Error("user_avatar_cleanup_failed", err, map[string]interface{}{
					"storage_key": key,
				})
			}
		}
	}

	if admin != nil {
		logger.InfoWithUser(admin.ID.String(), "admin_user_deleted", map[string]interface{}{
			"target_user_id": userID.String(),
		})
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.user_delete",
			ResourceType: "user",
			ResourceID:   &userID,
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}

type updateStatusRequest struct {
	Status models.AccountStatus `json:"status"`
	Reason string               `json:"reason"`
}

func (h *AdminUsersHandler) UpdateStatus(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)
	if admin == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if admin.ID == userID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot change your own account status")
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	switch req.Status {
	case models.AccountStatusActive, models.AccountStatusSuspended, models.AccountStatusDisabled:
	default:
		return utils.Error(c, fiber.StatusBadRequest, "invalid status")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	updates := map[string]interface{}{"account_status": req.Status}
	if req.Status == models.AccountStatusActive {
		updates["suspended_at"] = nil
		updates["suspended_by"] = nil
		updates["suspended_reason"] = nil
	} else {
		now := time.Now().UTC()
		updates["suspended_at"] = now
		updates["suspended_by"] = admin.ID
		updates["suspended_reason"] = strings.TrimSpace(req.Reason)
	}

	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating status")
	}

	logger.InfoWithUser(admin.ID.String(), "admin_status_changed", map[string]interface{}{
		"target_user_id": userID.String(),
		"status":         string(req.Status),
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &admin.ID,
		Action:       "admin.user_status",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"status": string(req.Status),
			"reason": strings.TrimSpace(req.Reason),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, user)
}

type updateQuotaRequest struct {
	StorageQuotaBytes int64  `json:"storageQuotaBytes"`
	Reason            string `json:"reason"`
}

func (h *AdminUsersHandler) UpdateQuota(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)
	if admin == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req updateQuotaRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.StorageQuotaBytes <= 0 {
		return utils.Error(c, fiber.StatusBadRequest, "storageQuotaBytes must be positive")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	previous := user.StorageQuotaBytes
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("storage_quota_bytes", req.StorageQuotaBytes).Error; err != nil {
			return err
		}
		history := models.QuotaHistory{
			UserID:        user.ID,
			PreviousQuota: previous,
			NewQuota:      req.StorageQuotaBytes,
			ChangedBy:     admin.ID,
			Reason:        strings.TrimSpace(req.Reason),
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating quota")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &admin.ID,
		Action:       "admin.user_quota",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"previous_quota": previous,
			"new_quota":      req.StorageQuotaBytes,
			"reason":         strings.TrimSpace(req.Reason),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, user)
}

func (h *AdminUsersHandler) QuotaHistory(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var history []models.QuotaHistory
	if err := h.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(10).
		Find(&history).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing quota history")
	}

	return utils.Success(c, fiber.StatusOK, history)
}
