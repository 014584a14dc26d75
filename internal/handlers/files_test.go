package handlers

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudvault/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

func TestUploadStoresFileAndIncrementsUsage(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "owner@example.com", "Str0ngPass", models.UserRoleUser)

	content := []byte("hello cloudvault")
	resp := performUpload(t, env.app, "/api/files/upload", "notes.txt", "text/plain", content, nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusCreated)

	var file models.File
	if err := env.db.First(&file, "owner_id = ?", user.ID).Error; err != nil {
		t.Fatalf("expected file row: %v", err)
	}
	if file.Size != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), file.Size)
	}
	if !env.storage.Exists(file.StorageKey) {
		t.Fatalf("expected bytes on disk at %s", file.StorageKey)
	}

	if got := reloadUser(t, env.db, user.ID).UsedStorageBytes; got != int64(len(content)) {
		t.Fatalf("expected usage %d, got %d", len(content), got)
	}
}

func TestUploadOverQuotaRejectedWithoutMutation(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "small@example.com", "Str0ngPass", models.UserRoleUser)
	if err := env.db.Model(user).Updates(map[string]interface{}{
		"storage_quota_bytes": 10,
		"used_storage_bytes":  9,
	}).Error; err != nil {
		t.Fatalf("failed shrinking quota: %v", err)
	}

	resp := performUpload(t, env.app, "/api/files/upload", "big.txt", "text/plain", []byte("xx"), nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "storage quota exceeded")

	var count int64
	if err := env.db.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed counting files: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no file rows, got %d", count)
	}
	if got := reloadUser(t, env.db, user.ID).UsedStorageBytes; got != 9 {
		t.Fatalf("expected usage unchanged at 9, got %d", got)
	}
}

func TestUploadExactlyFillingQuotaSucceeds(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "tight@example.com", "Str0ngPass", models.UserRoleUser)
	if err := env.db.Model(user).Updates(map[string]interface{}{
		"storage_quota_bytes": 10,
		"used_storage_bytes":  8,
	}).Error; err != nil {
		t.Fatalf("failed shrinking quota: %v", err)
	}

	resp := performUpload(t, env.app, "/api/files/upload", "fit.txt", "text/plain", []byte("ab"), nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusCreated)

	if got := reloadUser(t, env.db, user.ID).UsedStorageBytes; got != 10 {
		t.Fatalf("expected usage 10, got %d", got)
	}
}

func TestUploadDisallowedTypeRejected(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "types@example.com", "Str0ngPass", models.UserRoleUser)

	resp := performUpload(t, env.app, "/api/files/upload", "app.exe", "application/x-msdownload", []byte("MZ"), nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusBadRequest)
}

func TestUploadPolicyDenyBeatsBuiltinAllowList(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "policy@example.com", "Str0ngPass", models.UserRoleUser)

	policy := models.FileTypePolicy{MimeType: "text/plain", Category: "document", IsAllowed: false}
	if err := env.db.Create(&policy).Error; err != nil {
		t.Fatalf("failed creating policy: %v", err)
	}

	resp := performUpload(t, env.app, "/api/files/upload", "notes.txt", "text/plain", []byte("hi"), nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusBadRequest)
}

func TestUploadPolicySizeCapApplies(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "cap@example.com", "Str0ngPass", models.UserRoleUser)

	maxSize := int64(4)
	policy := models.FileTypePolicy{MimeType: "text/plain", Category: "document", IsAllowed: true, MaxFileSize: &maxSize}
	if err := env.db.Create(&policy).Error; err != nil {
		t.Fatalf("failed creating policy: %v", err)
	}

	resp := performUpload(t, env.app, "/api/files/upload", "notes.txt", "text/plain", []byte("too long"), nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusBadRequest)

	resp = performUpload(t, env.app, "/api/files/upload", "tiny.txt", "text/plain", []byte("ok"), nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusCreated)
}

func TestUploadIntoForeignFolderForbidden(t *testing.T) {
	env := setupTestEnv(t)
	other, _ := createTestUser(t, env.db, "other@example.com", "Str0ngPass", models.UserRoleUser)
	_, token := createTestUser(t, env.db, "uploader@example.com", "Str0ngPass", models.UserRoleUser)

	folder := models.Folder{Name: "theirs", OwnerID: other.ID}
	if err := env.db.Create(&folder).Error; err != nil {
		t.Fatalf("failed creating folder: %v", err)
	}

	resp := performUpload(t, env.app, "/api/files/upload", "notes.txt", "text/plain", []byte("hi"),
		map[string]string{"folderId": folder.ID.String()}, authHeaders(token))
	assertStatus(t, resp, fiber.StatusForbidden)
}

func TestDownloadStreamsOwnBytes(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "dl@example.com", "Str0ngPass", models.UserRoleUser)

	content := []byte("stream me back")
	resp := performUpload(t, env.app, "/api/files/upload", "notes.txt", "text/plain", content, nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusCreated)

	var file models.File
	if err := env.db.First(&file).Error; err != nil {
		t.Fatalf("expected file row: %v", err)
	}

	dl := performRequest(t, env.app, fiber.MethodGet, "/api/files/"+file.ID.String()+"/download", nil, authHeaders(token))
	assertStatus(t, dl, fiber.StatusOK)
	defer dl.Body.Close()

	got, err := io.ReadAll(dl.Body)
	if err != nil {
		t.Fatalf("failed reading download body: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("expected body %q, got %q", content, got)
	}
	if ct := dl.Header.Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("expected text/plain content type, got %q", ct)
	}
	if cd := dl.Header.Get("Content-Disposition"); cd == "" {
		t.Fatal("expected content disposition header")
	}
}

func TestDownloadAndDeleteForbiddenForNonOwner(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createTestUser(t, env.db, "fileowner@example.com", "Str0ngPass", models.UserRoleUser)
	_, otherToken := createTestUser(t, env.db, "intruder@example.com", "Str0ngPass", models.UserRoleUser)

	resp := performUpload(t, env.app, "/api/files/upload", "secret.txt", "text/plain", []byte("private"), nil, authHeaders(ownerToken))
	assertStatus(t, resp, fiber.StatusCreated)

	var file models.File
	if err := env.db.First(&file).Error; err != nil {
		t.Fatalf("expected file row: %v", err)
	}

	dl := performRequest(t, env.app, fiber.MethodGet, "/api/files/"+file.ID.String()+"/download", nil, authHeaders(otherToken))
	assertStatus(t, dl, fiber.StatusForbidden)

	del := performRequest(t, env.app, fiber.MethodDelete, "/api/files/"+file.ID.String(), nil, authHeaders(otherToken))
	assertStatus(t, del, fiber.StatusForbidden)
}

func TestDeleteSoftDeletesAndReleasesQuota(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "trash@example.com", "Str0ngPass", models.UserRoleUser)

	content := []byte("short lived")
	resp := performUpload(t, env.app, "/api/files/upload", "notes.txt", "text/plain", content, nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusCreated)

	var file models.File
	if err := env.db.First(&file).Error; err != nil {
		t.Fatalf("expected file row: %v", err)
	}

	del := performRequest(t, env.app, fiber.MethodDelete, "/api/files/"+file.ID.String(), nil, authHeaders(token))
	assertStatus(t, del, fiber.StatusOK)

	if got := reloadUser(t, env.db, user.ID).UsedStorageBytes; got != 0 {
		t.Fatalf("expected usage back to 0, got %d", got)
	}

	// Excluded from default-scoped queries.
	var visible int64
	if err := env.db.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&visible).Error; err != nil {
		t.Fatalf("failed counting files: %v", err)
	}
	if visible != 0 {
		t.Fatalf("expected 0 visible files, got %d", visible)
	}

	// Still retrievable by id.
	get := performRequest(t, env.app, fiber.MethodGet, "/api/files/"+file.ID.String(), nil, authHeaders(token))
	assertStatus(t, get, fiber.StatusOK)

	// Bytes stay on disk until the purger runs.
	if !env.storage.Exists(file.StorageKey) {
		t.Fatal("expected bytes to remain on disk after soft delete")
	}

	list := performRequest(t, env.app, fiber.MethodGet, "/api/files/", nil, authHeaders(token))
	assertStatus(t, list, fiber.StatusOK)
	body := decodeJSONMap(t, list)
	if data, _ := body["data"].([]any); len(data) != 0 {
		t.Fatalf("expected empty listing, got %+v", data)
	}
}

func TestListFiltersByFolderAndSorts(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "lister@example.com", "Str0ngPass", models.UserRoleUser)

	folder := models.Folder{Name: "docs", OwnerID: user.ID}
	if err := env.db.Create(&folder).Error; err != nil {
		t.Fatalf("failed creating folder: %v", err)
	}

	rootResp := performUpload(t, env.app, "/api/files/upload", "root.txt", "text/plain", []byte("r"), nil, authHeaders(token))
	assertStatus(t, rootResp, fiber.StatusCreated)
	folderResp := performUpload(t, env.app, "/api/files/upload", "inside.txt", "text/plain", []byte("f"),
		map[string]string{"folderId": folder.ID.String()}, authHeaders(token))
	assertStatus(t, folderResp, fiber.StatusCreated)

	list := performRequest(t, env.app, fiber.MethodGet, "/api/files/?folderId="+folder.ID.String(), nil, authHeaders(token))
	assertStatus(t, list, fiber.StatusOK)
	body := decodeJSONMap(t, list)
	data, _ := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 file in folder, got %d", len(data))
	}

	list = performRequest(t, env.app, fiber.MethodGet, "/api/files/?sortBy=name&sortOrder=asc", nil, authHeaders(token))
	assertStatus(t, list, fiber.StatusOK)
	body = decodeJSONMap(t, list)
	data, _ = body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 root file, got %d", len(data))
	}

	bad := performRequest(t, env.app, fiber.MethodGet, "/api/files/?sortBy=;drop", nil, authHeaders(token))
	assertStatus(t, bad, fiber.StatusBadRequest)
}

func assertUploadLeftNoTrace(t *testing.T, env *testEnv, user *models.User) {
	t.Helper()

	if reloaded := reloadUser(t, env.db, user.ID); reloaded.UsedStorageBytes != 0 {
		t.Fatalf("expected reservation to be released, usage is %d", reloaded.UsedStorageBytes)
	}
	var count int64
	if err := env.db.Unscoped().Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed counting file rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no file rows, got %d", count)
	}
}

func TestUploadFailureLeavesNoTrace(t *testing.T) {
	t.Run("staging fails", func(t *testing.T) {
		env := setupTestEnv(t)
		user, token := createTestUser(t, env.db, "staged@example.com", "Str0ngPass", models.UserRoleUser)

		// Without the temp directory the staged write cannot start.
		if err := os.RemoveAll(filepath.Join(env.storageRoot, ".tmp")); err != nil {
			t.Fatalf("failed removing temp dir: %v", err)
		}

		resp := performUpload(t, env.app, "/api/files/upload", "doomed.txt", "text/plain", []byte("doomed"), nil, authHeaders(token))
		assertStatus(t, resp, fiber.StatusInternalServerError)
		assertEnvelopeError(t, decodeJSONMap(t, resp), "failed writing file")
		assertUploadLeftNoTrace(t, env, user)
	})

	t.Run("final rename fails", func(t *testing.T) {
		env := setupTestEnv(t)
		user, token := createTestUser(t, env.db, "renamed@example.com", "Str0ngPass", models.UserRoleUser)

		// A plain file where the files directory belongs makes the
		// rename fail after the row insert, exercising the rollback.
		if err := os.WriteFile(filepath.Join(env.storageRoot, "files"), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed planting blocker file: %v", err)
		}

		resp := performUpload(t, env.app, "/api/files/upload", "doomed.txt", "text/plain", []byte("doomed"), nil, authHeaders(token))
		assertStatus(t, resp, fiber.StatusInternalServerError)
		assertEnvelopeError(t, decodeJSONMap(t, resp), "failed storing file")
		assertUploadLeftNoTrace(t, env, user)

		entries, err := os.ReadDir(filepath.Join(env.storageRoot, ".tmp"))
		if err != nil {
			t.Fatalf("failed reading temp dir: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("expected temp dir to be empty, found %d entries", len(entries))
		}
	})
}
