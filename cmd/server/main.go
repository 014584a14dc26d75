package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudvault/backend/internal/config"
	"github.com/cloudvault/backend/internal/database"
	"github.com/cloudvault/backend/internal/handlers"
	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/internal/storage"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	localStorage, err := storage.NewLocalStorage(cfg.Storage.UploadsDir)
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}

	var archiveClient *storage.ArchiveClient
	if cfg.Archive.Enabled {
		archiveClient, err = storage.NewArchiveClient(cfg.Archive)
		if err != nil {
			log.Fatalf("archive initialization failed: %v", err)
		}
		if err := archiveClient.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring archive bucket: %v", err)
		}
	}

	auditService := services.NewAuditService(db, archiveClient)
	auditService.StartExporter(cfg.Audit.ExportInterval)

	quotaService := services.NewQuotaService(db)

	trashService := services.NewTrashService(db, localStorage)
	trashService.StartPurger(cfg.Trash.PurgeInterval)

	authHandler := handlers.NewAuthHandler(db, auditService, cfg.Storage.DefaultQuotaBytes)
	usersHandler := handlers.NewUsersHandler(db, localStorage, auditService)
	filesHandler := handlers.NewFilesHandler(db, localStorage, quotaService, auditService)
	foldersHandler := handlers.NewFoldersHandler(db, auditService)
	adminUsersHandler := handlers.NewAdminUsersHandler(db, localStorage, auditService, cfg.Storage.DefaultQuotaBytes)
	adminSettingsHandler := handlers.NewAdminSettingsHandler(db, auditService)
	adminFileTypesHandler := handlers.NewAdminFileTypesHandler(db, auditService)
	adminDashboardHandler := handlers.NewAdminDashboardHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New())
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// Avatars are the only publicly served objects; file bytes stay
	// behind the authenticated download route.
	app.Static("/uploads/avatars", filepath.Join(cfg.Storage.UploadsDir, "avatars"))

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

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":       cfg.Server.Port,
		"address":    listenAddr,
		"body_limit": "100MB",
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
