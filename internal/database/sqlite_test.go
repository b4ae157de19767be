package database

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	db, closeDB, err := OpenSQLite("", zap.NewNop())
	if err == nil {
		testContext.Fatalf("expected error for empty path")
	}
	if db != nil || closeDB != nil {
		testContext.Fatalf("expected no handle on failure")
	}
}

func TestOpenSQLiteCloseReleasesPool(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "contribcast.db")

	db, closeDB, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Exec("SELECT 1").Error; err != nil {
		testContext.Fatalf("expected open pool, got %v", err)
	}

	if err := closeDB(); err != nil {
		testContext.Fatalf("failed to close sqlite: %v", err)
	}
	if err := db.Exec("SELECT 1").Error; err == nil {
		testContext.Fatalf("expected queries to fail after close")
	}

	reopened, closeReopened, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to reopen sqlite: %v", err)
	}
	defer closeReopened()
	var count int64
	if err := reopened.Model(&migrationRecord{}).Where("name = ?", migrationNormalizeSlotRevisions).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected migration recorded once, got %d", count)
	}
}
