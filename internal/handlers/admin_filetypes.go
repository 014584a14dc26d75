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

type AdminFileTypesHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewAdminFileTypesHandler(db *gorm.DB, audit *services.AuditService) *AdminFileTypesHandler {
	return &AdminFileTypesHandler{DB: db, Audit: audit}
}

func (h *AdminFileTypesHandler) List(c *fiber.Ctx) error {
	query := h.DB.Model(&models.FileTypePolicy{})
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category = ?", category)
	}

	var policies []models.FileTypePolicy
	if err := query.Order("mime_type ASC").Find(&policies).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing file type policies")
	}

	return utils.Success(c, fiber.StatusOK, policies)
}

type fileTypePolicyRequest struct {
	MimeType         string  `json:"mimeType"`
	Extension        *string `json:"extension"`
	Category         string  `json:"category"`
	IsAllowed        *bool   `json:"isAllowed"`
	MaxFileSize      *int64  `json:"maxFileSize"`
	RequiresApproval *bool   `json:"requiresApproval"`
	ScanOnUpload     *bool   `json:"scanOnUpload"`
	GeneratePreview  *bool   `json:"generatePreview"`
	DisplayName      *string `json:"displayName"`
	Icon             *string `json:"icon"`
	Color            *string `json:"color"`
}

func (h *AdminFileTypesHandler) Create(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	var req fileTypePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	mimeType := strings.ToLower(strings.TrimSpace(req.MimeType))
	if mimeType == "" || !strings.Contains(mimeType, "/") {
		return utils.Error(c, fiber.StatusBadRequest, "valid mimeType is required")
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return utils.Error(c, fiber.StatusBadRequest, "category is required")
	}
	if req.MaxFileSize != nil && *req.MaxFileSize <= 0 {
		return utils.Error(c, fiber.StatusBadRequest, "maxFileSize must be positive")
	}

	var existing int64
	if err := h.DB.Model(&models.FileTypePolicy{}).Where("mime_type = ?", mimeType).Count(&existing).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking mime type")
	}
	if existing > 0 {
		return utils.Error(c, fiber.StatusConflict, "policy already exists for this mime type")
	}

	policy := models.FileTypePolicy{
		MimeType:    mimeType,
		Extension:   req.Extension,
		Category:    category,
		IsAllowed:   true,
		MaxFileSize: req.MaxFileSize,
		DisplayName: req.DisplayName,
		Icon:        req.Icon,
		Color:       req.Color,
	}
	if req.IsAllowed != nil {
		policy.IsAllowed = *req.IsAllowed
	}
	if req.RequiresApproval != nil {
		policy.RequiresApproval = *req.RequiresApproval
	}
	if req.ScanOnUpload != nil {
		policy.ScanOnUpload = *req.ScanOnUpload
	}
	if req.GeneratePreview != nil {
		policy.GeneratePreview = *req.GeneratePreview
	}
	if admin != nil {
		policy.CreatedBy = &admin.ID
	}

	if err := h.DB.Create(&policy).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating policy")
	}

	if admin != nil {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.filetype_create",
			ResourceType: "file_type_policy",
			ResourceID:   &policy.ID,
			Details:      map[string]interface{}{"mime_type": mimeType},
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusCreated, policy)
}

func (h *AdminFileTypesHandler) Update(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	policyID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid policy id")
	}

	var req fileTypePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var policy models.FileTypePolicy
	if err := h.DB.First(&policy, "id = ?", policyID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "policy not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching policy")
	}

	updates := map[string]interface{}{}
	if category := strings.TrimSpace(req.Category); category != "" {
		updates["category"] = category
	}
	if req.Extension != nil {
		updates["extension"] = req.Extension
	}
	if req.IsAllowed != nil {
		updates["is_allowed"] = *req.IsAllowed
	}
	if req.MaxFileSize != nil {
		if *req.MaxFileSize <= 0 {
			return utils.Error(c, fiber.StatusBadRequest, "maxFileSize must be positive")
		}
		updates["max_file_size"] = *req.MaxFileSize
	}
	if req.RequiresApproval != nil {
		updates["requires_approval"] = *req.RequiresApproval
	}
	if req.ScanOnUpload != nil {
		updates["scan_on_upload"] = *req.ScanOnUpload
	}
	if req.GeneratePreview != nil {
		updates["generate_preview"] = *req.GeneratePreview
	}
	if req.DisplayName != nil {
		updates["display_name"] = req.DisplayName
	}
	if req.Icon != nil {
		updates["icon"] = req.Icon
	}
	if req.Color != nil {
		updates["color"] = req.Color
	}
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}
	if admin != nil {
		updates["updated_by"] = admin.ID
	}

	if err := h.DB.Model(&policy).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating policy")
	}

	if admin != nil {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.filetype_update",
			ResourceType: "file_type_policy",
			ResourceID:   &policy.ID,
			Details:      map[string]interface{}{"mime_type": policy.MimeType},
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, policy)
}

func (h *AdminFileTypesHandler) Delete(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	policyID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid policy id")
	}

	result := h.DB.Delete(&models.FileTypePolicy{}, "id = ?", policyID)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting policy")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "policy not found")
	}

	if admin != nil {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &admin.ID,
			Action:       "admin.filetype_delete",
			ResourceType: "file_type_policy",
			ResourceID:   &policyID,
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "policy deleted"})
}
