// Package repotest opens throwaway in-memory SQLite stores for tests.
package repotest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/ProjectChat/internal/repositories"
)

// OpenDB returns a migrated in-memory database private to the calling test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// A single connection keeps the in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repositories.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewStore returns a GormStore backed by OpenDB.
func NewStore(t testing.TB) *repositories.GormStore {
	t.Helper()
	return repositories.NewGormStore(OpenDB(t))
}

// NewStoreFromDB wraps an existing OpenDB handle.
func NewStoreFromDB(db *gorm.DB) *repositories.GormStore {
	return repositories.NewGormStore(db)
}
