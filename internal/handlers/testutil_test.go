package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/cloudvault/backend/internal/database"
	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/internal/storage"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app         *fiber.App
	db          *gorm.DB
	storage     *storage.LocalStorage
	storageRoot string
	quota       *services.QuotaService
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	// Foreign keys are off by default in sqlite; the Postgres target
	// enforces them, so the tests must too.
	db, err := gorm.Open(sqlite.Open(":memory:?_pragma=foreign_keys(1)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	storageRoot := t.TempDir()
	localStorage, err := storage.NewLocalStorage(storageRoot)
	if err != nil {
		t.Fatalf("failed creating local storage: %v", err)
	}

	auditService := services.NewAuditService(db, nil)
	quotaService := services.NewQuotaService(db)

	authHandler := NewAuthHandler(db, auditService, 0)
	usersHandler := NewUsersHandler(db, localStorage, auditService)
	filesHandler := NewFilesHandler(db, localStorage, quotaService, auditService)
	foldersHandler := NewFoldersHandler(db, auditService)
	adminUsersHandler := NewAdminUsersHandler(db, localStorage, auditService, 0)
	adminSettingsHandler := NewAdminSettingsHandler(db, auditService)
	adminFileTypesHandler := NewAdminFileTypesHandler(db, auditService)
	adminDashboardHandler := NewAdminDashboardHandler(db)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.Upload)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Get("/:id/download", filesHandler.Download)
	fileRoutes.Get("/:id", filesHandler.Get)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	folderRoutes := api.Group("/folders", authMiddleware.RequireAuth)
	folderRoutes.Get("/", foldersHandler.List)
	folderRoutes.Post("/", foldersHandler.Create)
	folderRoutes.Get("/:id", foldersHandler.Get)
	folderRoutes.Put("/:id", foldersHandler.Update)
	folderRoutes.Delete("/:id", foldersHandler.Delete)

	userRoutes := api.Group("/user", authMiddleware.RequireAuth)
	userRoutes.Get("/settings", usersHandler.GetSettings)
	userRoutes.Patch("/settings", usersHandler.UpdateSettings)
	userRoutes.Patch("/profile", usersHandler.UpdateProfile)
	userRoutes.Post("/change-password", usersHandler.ChangePassword)
	userRoutes.Post("/avatar", usersHandler.UploadAvatar)
	userRoutes.Get("/login-history", usersHandler.LoginHistory)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/users", adminUsersHandler.List)
	adminRoutes.Post("/users", adminUsersHandler.Create)
	adminRoutes.Get("/users/:id", adminUsersHandler.Get)
	adminRoutes.Put("/users/:id", adminUsersHandler.Update)
	adminRoutes.Delete("/users/:id", adminUsersHandler.Delete)
	adminRoutes.Patch("/users/:id/status", adminUsersHandler.UpdateStatus)
	adminRoutes.Patch("/users/:id/quota", adminUsersHandler.UpdateQuota)
	adminRoutes.Get("/users/:id/quota", adminUsersHandler.QuotaHistory)
	adminRoutes.Get("/settings", adminSettingsHandler.List)
	adminRoutes.Post("/settings", adminSettingsHandler.Create)
	adminRoutes.Put("/settings", adminSettingsHandler.BulkUpdate)
	adminRoutes.Delete("/settings/:key", adminSettingsHandler.Delete)
	adminRoutes.Get("/file-types", adminFileTypesHandler.List)
	adminRoutes.Post("/file-types", adminFileTypesHandler.Create)
	adminRoutes.Put("/file-types/:id", adminFileTypesHandler.Update)
	adminRoutes.Delete("/file-types/:id", adminFileTypesHandler.Delete)
	adminRoutes.Get("/dashboard/stats", adminDashboardHandler.Stats)

	return &testEnv{app: app, db: db, storage: localStorage, storageRoot: storageRoot, quota: quotaService}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:             email,
		PasswordHash:      hash,
		Name:              "Test User",
		Role:              role,
		AccountStatus:     models.AccountStatusActive,
		StorageQuotaBytes: models.DefaultStorageQuotaBytes,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

// performUpload posts a multipart form with one file part plus optional
// extra form fields.
func performUpload(t *testing.T, app *fiber.App, path, filename, contentType string, content []byte, fields map[string]string, headers map[string]string) *http.Response {
	t.Helper()
	return performMultipart(t, app, path, "file", filename, contentType, content, fields, headers)
}

func performMultipart(t *testing.T, app *fiber.App, path, fieldName, filename, contentType string, content []byte, fields map[string]string, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="`+filename+`"`)
	partHeader.Set("Content-Type", contentType)
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("failed creating multipart part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed writing multipart content: %v", err)
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}

	return performRequest(t, app, fiber.MethodPost, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func reloadUser(t *testing.T, db *gorm.DB, id any) *models.User {
	t.Helper()

	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("failed reloading user: %v", err)
	}
	return &user
}
