package handlers

import (
	"strings"

	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FoldersHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewFoldersHandler(db *gorm.DB, audit *services.AuditService) *FoldersHandler {
	return &FoldersHandler{DB: db, Audit: audit}
}

func (h *FoldersHandler) attachCounts(folder *models.Folder) error {
	if err := h.DB.Model(&models.File{}).
		Where("folder_id = ?", folder.ID).
		Count(&folder.FileCount).Error; err != nil {
		return err
	}
	return h.DB.Model(&models.Folder{}).
		Where("parent_id = ?", folder.ID).
		Count(&folder.ChildCount).Error
}

func (h *FoldersHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	query := h.DB.Where("owner_id = ?", currentUser.ID)

	parentIDRaw := strings.TrimSpace(c.Query("parentId"))
	if parentIDRaw != "" {
		parentID, err := parseUUID(parentIDRaw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid parentId")
		}
		query = query.Where("parent_id = ?", parentID)
	} else {
		query = query.Where("parent_id IS NULL")
	}

	var folders []models.Folder
	if err := query.Order("name ASC").Find(&folders).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing folders")
	}

	for i := range folders {
		if err := h.attachCounts(&folders[i]); err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed counting folder contents")
		}
	}

	return utils.Success(c, fiber.StatusOK, folders)
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

func (h *FoldersHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	var parentID *uuid.UUID
	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) != "" {
		parsed, err := parseUUID(*req.ParentID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid parentId")
		}

		var parent models.Folder
		if err := h.DB.First(&parent, "id = ?", parsed).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.Error(c, fiber.StatusNotFound, "parent folder not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading parent folder")
		}
		if parent.OwnerID != currentUser.ID {
			return utils.Error(c, fiber.StatusForbidden, "parent folder is not owned by you")
		}
		parentID = &parsed
	}

	folder := models.Folder{
		Name:     name,
		OwnerID:  currentUser.ID,
		ParentID: parentID,
	}
	if err := h.DB.Create(&folder).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating folder")
	}

	logger.InfoWithUser(currentUser.ID.String(), "folder_created", map[string]interface{}{
		"folder_id":   folder.ID.String(),
		"folder_name": name,
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "folder.create",
		ResourceType: "folder",
		ResourceID:   &folder.ID,
		Details:      map[string]interface{}{"folder_name": name},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, folder)
}

func (h *FoldersHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var folder models.Folder
	if err := h.DB.First(&folder, "id = ?", folderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching folder")
	}

	if folder.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "folder is not owned by you")
	}

	if err := h.attachCounts(&folder); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting folder contents")
	}

	return utils.Success(c, fiber.StatusOK, folder)
}

type renameFolderRequest struct {
	Name string `json:"name"`
}

func (h *FoldersHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var req renameFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	var folder models.Folder
	if err := h.DB.First(&folder, "id = ?", folderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching folder")
	}

	if folder.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "folder is not owned by you")
	}

	if err := h.DB.Model(&folder).Update("name", name).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed renaming folder")
	}

	return utils.Success(c, fiber.StatusOK, folder)
}

func (h *FoldersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var folder models.Folder
	if err := h.DB.First(&folder, "id = ?", folderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching folder")
	}

	if folder.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "folder is not owned by you")
	}

	if err := h.attachCounts(&folder); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting folder contents")
	}
	if folder.FileCount > 0 || folder.ChildCount > 0 {
		return utils.Error(c, fiber.StatusBadRequest, "folder is not empty")
	}

	if err := h.DB.Delete(&folder).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting folder")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "folder.delete",
		ResourceType: "folder",
		ResourceID:   &folder.ID,
		Details:      map[string]interface{}{"folder_name": folder.Name},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "folder deleted"})
}
