package handlers

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

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

type FilesHandler struct {
	DB      *gorm.DB
	Storage *storage.LocalStorage
	Quota   *services.QuotaService
	Audit   *services.AuditService
}

func NewFilesHandler(db *gorm.DB, store *storage.LocalStorage, quota *services.QuotaService, audit *services.AuditService) *FilesHandler {
	return &FilesHandler{DB: db, Storage: store, Quota: quota, Audit: audit}
}

// checkTypePolicy applies the admin-managed policy when one exists for
// the MIME type and falls back to the built-in allow-list otherwise.
// It returns the effective size cap and whether the type is allowed.
func (h *FilesHandler) checkTypePolicy(mimeType string) (int64, bool, error) {
	var policy models.FileTypePolicy
	err := h.DB.First(&policy, "mime_type = ?", mimeType).Error
	switch {
	case err == nil:
		if !policy.IsAllowed {
			return 0, false, nil
		}
		limit := fileutil.MaxFileSize
		if policy.MaxFileSize != nil && *policy.MaxFileSize > 0 && *policy.MaxFileSize < limit {
			limit = *policy.MaxFileSize
		}
		return limit, true, nil
	case err == gorm.ErrRecordNotFound:
		if !fileutil.IsAllowedType(mimeType) {
			return 0, false, nil
		}
		return fileutil.MaxFileSize, true, nil
	default:
		return 0, false, err
	}
}

func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	filename := fileutil.SanitizeFilename(fileHeader.Filename)
	if filename == "" {
		return utils.Error(c, fiber.StatusBadRequest, "invalid filename")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	sizeCap, allowed, policyErr := h.checkTypePolicy(contentType)
	if policyErr != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking file type policy")
	}
	if !allowed {
		return utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("file type %s is not allowed", contentType))
	}
	if fileHeader.Size <= 0 || fileHeader.Size > sizeCap {
		return utils.Error(c, fiber.StatusBadRequest,
			fmt.Sprintf("file size must be between 1 byte and %d bytes", sizeCap))
	}

	var folderID *uuid.UUID
	folderIDRaw := strings.TrimSpace(c.FormValue("folderId"))
	if folderIDRaw != "" {
		parsed, parseErr := parseUUID(folderIDRaw)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
		}

		var folder models.Folder
		if err := h.DB.First(&folder, "id = ?", parsed).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.Error(c, fiber.StatusNotFound, "folder not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading folder")
		}
		if folder.OwnerID != currentUser.ID {
			logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
				"action":    "file_upload",
				"folder_id": folder.ID.String(),
			})
			return utils.Error(c, fiber.StatusForbidden, "folder is not owned by you")
		}
		folderID = &parsed
	}

	// Claim the bytes before touching the disk. The conditional UPDATE
	// either moves the counter within quota or affects zero rows, so
	// concurrent uploads cannot overshoot.
	if err := h.Quota.Reserve(nil, currentUser.ID, fileHeader.Size); err != nil {
		if err == services.ErrQuotaExceeded {
			return utils.Error(c, fiber.StatusBadRequest, "storage quota exceeded")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed reserving quota")
	}

	release := func() {
		if err := h.Quota.Release(nil, currentUser.ID, fileHeader.Size); err != nil {
			logger.Error("quota_release_failed", err, map[string]interface{}{
				"user_id": currentUser.ID.String(),
				"size":    fileHeader.Size,
			})
		}
	}

	stream, err := fileHeader.Open()
	if err != nil {
		release()
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	tempPath, written, err := h.Storage.Stage(stream)
	if err != nil {
		release()
		return utils.Error(c, fiber.StatusInternalServerError, "failed writing file")
	}
	if written != fileHeader.Size {
		h.Storage.Discard(tempPath)
		release()
		return utils.Error(c, fiber.StatusBadRequest, "file size mismatch")
	}

	storageKey := fmt.Sprintf("files/%s/%s", currentUser.ID.String(), fileutil.UniqueFilename(filename))

	entry := models.File{
		Name:       filename,
		MimeType:   contentType,
		Size:       fileHeader.Size,
		OwnerID:    currentUser.ID,
		FolderID:   folderID,
		StorageKey: storageKey,
		Metadata: map[string]interface{}{
			"originalName": fileHeader.Filename,
			"category":     fileutil.Category(contentType),
			"uploadedAt":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	// Row first, bytes second. If the rename fails the row is rolled
	// back, so a File row never points at missing bytes and a crashed
	// request leaves at most a temp file.
	if err := h.DB.Create(&entry).Error; err != nil {
		h.Storage.Discard(tempPath)
		release()
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating file record")
	}

	if err := h.Storage.Commit(tempPath, storageKey); err != nil {
		h.DB.Unscoped().Delete(&models.File{}, "id = ?", entry.ID)
		h.Storage.Discard(tempPath)
		release()
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing file")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_uploaded", map[string]interface{}{
		"file_id":     entry.ID.String(),
		"file_name":   filename,
		"file_size":   fileHeader.Size,
		"mime_type":   contentType,
		"storage_key": storageKey,
	})

	auditDetails := map[string]interface{}{
		"file_name": filename,
		"file_size": fileHeader.Size,
		"mime_type": contentType,
	}
	if folderID != nil {
		auditDetails["folder_id"] = folderID.String()
	}
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.upload",
		ResourceType: "file",
		ResourceID:   &entry.ID,
		Details:      auditDetails,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"file": entry})
}

var fileSortColumns = map[string]string{
	"name":      "name",
	"size":      "size",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c)
	query := h.DB.Model(&models.File{}).Where("owner_id = ?", currentUser.ID)

	folderIDRaw := strings.TrimSpace(c.Query("folderId"))
	if folderIDRaw != "" {
		folderID, err := parseUUID(folderIDRaw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
		}
		query = query.Where("folder_id = ?", folderID)
	} else {
		query = query.Where("folder_id IS NULL")
	}

	sortColumn, ok := fileSortColumns[c.Query("sortBy", "createdAt")]
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "invalid sortBy")
	}
	sortOrder := strings.ToLower(c.Query("sortOrder", "desc"))
	if sortOrder != "asc" && sortOrder != "desc" {
		return utils.Error(c, fiber.StatusBadRequest, "invalid sortOrder")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting files")
	}

	var files []models.File
	if err := utils.ApplyPagination(query.Order(sortColumn+" "+sortOrder), p).Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}

	return utils.Paginated(c, files, p.Page, p.Limit, total)
}

func (h *FilesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	// Unscoped so a trashed file stays inspectable by id.
	var file models.File
	if err := h.DB.Unscoped().Preload("Folder").First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching file")
	}

	if file.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "file is not owned by you")
	}

	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching file")
	}

	if file.OwnerID != currentUser.ID {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":  "file_download",
			"file_id": file.ID.String(),
		})
		return utils.Error(c, fiber.StatusForbidden, "file is not owned by you")
	}

	reader, size, err := h.Storage.Open(file.StorageKey)
	if err != nil {
		if os.IsNotExist(err) {
			return utils.Error(c, fiber.StatusNotFound, "file contents not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening file")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.download",
		ResourceType: "file",
		ResourceID:   &file.ID,
		Details:      map[string]interface{}{"file_name": file.Name},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	c.Set(fiber.HeaderContentType, file.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	return c.SendStream(reader, int(size))
}

func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching file")
	}

	if file.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "file is not owned by you")
	}

	// The soft delete and the usage decrement land together or not at
	// all; the counter cannot drift from a half-finished delete.
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.File{}, "id = ?", file.ID).Error; err != nil {
			return err
		}
		return h.Quota.Release(tx, currentUser.ID, file.Size)
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting file")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_deleted", map[string]interface{}{
		"file_id":   file.ID.String(),
		"file_name": file.Name,
		"file_size": file.Size,
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.delete",
		ResourceType: "file",
		ResourceID:   &file.ID,
		Details:      map[string]interface{}{"file_name": file.Name},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "file moved to trash"})
}
