package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// The returned close func releases the underlying pool; on error the pool is already closed.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, func() error, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		// gorm.Open succeeded without exposing a pool; there is nothing left to close.
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&StorageSlot{}, &migrationRecord{}); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, sqlDB.Close, nil
}
