package handlers

import (
	"regexp"
	"strings"
	"time"

	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB           *gorm.DB
	Audit        *services.AuditService
	DefaultQuota int64
}

func NewAuthHandler(db *gorm.DB, audit *services.AuditService, defaultQuota int64) *AuthHandler {
	if defaultQuota <= 0 {
		defaultQuota = models.DefaultStorageQuotaBytes
	}
	return &AuthHandler{DB: db, Audit: audit, DefaultQuota: defaultQuota}
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validatePassword(password string) []string {
	var problems []string
	if len(password) < 8 {
		problems = append(problems, "must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper {
		problems = append(problems, "must contain an uppercase letter")
	}
	if !hasLower {
		problems = append(problems, "must contain a lowercase letter")
	}
	if !hasDigit {
		problems = append(problems, "must contain a digit")
	}
	return problems
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)

	details := map[string][]string{}
	if email == "" {
		details["email"] = append(details["email"], "is required")
	} else if !emailPattern.MatchString(email) {
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
		Role:              models.UserRoleUser,
		AccountStatus:     models.AccountStatusActive,
		StorageQuotaBytes: h.DefaultQuota,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"email": email,
	})
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.register",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed looking up user")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		h.recordLogin(c, user.ID, models.LoginStatusFailed)
		logger.WarnWithUser(user.ID.String(), "login_failed", map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !user.IsActive() {
		h.recordLogin(c, user.ID, models.LoginStatusFailed)
		return utils.Error(c, fiber.StatusForbidden, "account is not active")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	h.recordLogin(c, user.ID, models.LoginStatusSuccess)

	now := time.Now().UTC()
	if err := h.DB.Model(&user).Update("last_login_at", now).Error; err != nil {
		logger.Error("last_login_update_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
		})
	}
	user.LastLoginAt = &now

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.login",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	utilization := 0.0
	if currentUser.StorageQuotaBytes > 0 {
		utilization = float64(currentUser.UsedStorageBytes) / float64(currentUser.StorageQuotaBytes) * 100
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user": currentUser,
		"storage": fiber.Map{
			"quotaBytes":     currentUser.StorageQuotaBytes,
			"usedBytes":      currentUser.UsedStorageBytes,
			"utilizationPct": utilization,
		},
	})
}

func (h *AuthHandler) recordLogin(c *fiber.Ctx, userID uuid.UUID, status models.LoginStatus) {
	entry := models.LoginHistory{
		UserID:    userID,
		Status:    status,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Device:    parseDevice(c.Get(fiber.HeaderUserAgent)),
	}
	if err := h.DB.Create(&entry).Error; err != nil {
		logger.Error("login_history_insert_failed", err, map[string]interface{}{
			"user_id": userID.String(),
		})
	}
}

func parseDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "iphone"):
		return "iPhone"
	case strings.Contains(ua, "ipad"):
		return "iPad"
	case strings.Contains(ua, "android"):
		return "Android Device"
	case strings.Contains(ua, "windows"):
		return "Windows PC"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os"):
		return "Mac"
	case strings.Contains(ua, "linux"):
		return "Linux PC"
	default:
		return "Unknown Device"
	}
}
