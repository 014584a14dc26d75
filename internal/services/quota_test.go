package services

import (
	"testing"

	"github.com/cloudvault/backend/internal/models"
)

func TestReserveWithinQuota(t *testing.T) {
	db := setupTestDB(t)
	user := createQuotaUser(t, db, 100, 40)
	quota := NewQuotaService(db)

	if err := quota.Reserve(nil, user.ID, 60); err != nil {
		t.Fatalf("expected reservation up to the limit to succeed: %v", err)
	}

	var reloaded models.User
	if err := db.First(&reloaded, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed reloading user: %v", err)
	}
	if reloaded.UsedStorageBytes != 100 {
		t.Fatalf("expected usage 100, got %d", reloaded.UsedStorageBytes)
	}
}

func TestReserveOverQuotaFailsWithoutMutation(t *testing.T) {
	db := setupTestDB(t)
	user := createQuotaUser(t, db, 100, 40)
	quota := NewQuotaService(db)

	if err := quota.Reserve(nil, user.ID, 61); err != ErrQuotaExceeded {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	var reloaded models.User
	if err := db.First(&reloaded, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed reloading user: %v", err)
	}
	if reloaded.UsedStorageBytes != 40 {
		t.Fatalf("expected usage unchanged at 40, got %d", reloaded.UsedStorageBytes)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	db := setupTestDB(t)
	user := createQuotaUser(t, db, 100, 10)
	quota := NewQuotaService(db)

	if err := quota.Release(nil, user.ID, 25); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	var reloaded models.User
	if err := db.First(&reloaded, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed reloading user: %v", err)
	}
	if reloaded.UsedStorageBytes != 0 {
		t.Fatalf("expected usage floored at 0, got %d", reloaded.UsedStorageBytes)
	}
}

func TestRecalculateRepairsDrift(t *testing.T) {
	db := setupTestDB(t)
	user := createQuotaUser(t, db, 1000, 999)
	quota := NewQuotaService(db)

	files := []models.File{
		{Name: "a", MimeType: "text/plain", Size: 10, OwnerID: user.ID, StorageKey: "files/u/a"},
		{Name: "b", MimeType: "text/plain", Size: 20, OwnerID: user.ID, StorageKey: "files/u/b"},
		{Name: "c", MimeType: "text/plain", Size: 40, OwnerID: user.ID, StorageKey: "files/u/c"},
	}
	for i := range files {
		if err := db.Create(&files[i]).Error; err != nil {
			t.Fatalf("failed creating file: %v", err)
		}
	}

	// Trashed files must not count.
	if err := db.Delete(&files[2]).Error; err != nil {
		t.Fatalf("failed soft deleting file: %v", err)
	}

	total, err := quota.Recalculate(user.ID)
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if total != 30 {
		t.Fatalf("expected recalculated total 30, got %d", total)
	}

	var reloaded models.User
	if err := db.First(&reloaded, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed reloading user: %v", err)
	}
	if reloaded.UsedStorageBytes != 30 {
		t.Fatalf("expected usage 30, got %d", reloaded.UsedStorageBytes)
	}
}
