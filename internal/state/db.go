// Package state persists the resources webui-gke has adopted or created, the
// deployment target, and the run lock, in a local SQLite database.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenFromURL opens a GORM DB based on a simple db-url string.
// Supported:
//   - sqlite:<dsn>   e.g., sqlite:.webui-gke/state.db or sqlite::memory:
func OpenFromURL(dbURL string) (*gorm.DB, error) {
	if !strings.HasPrefix(dbURL, "sqlite:") {
		return nil, fmt.Errorf("unsupported db scheme: %s", dbURL)
	}
	dsn := strings.TrimPrefix(dbURL, "sqlite:")
	if dsn == "" {
		return nil, fmt.Errorf("empty sqlite dsn")
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// AutoMigrate applies schema migrations for all state models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ResourceRow{}, &TargetRow{}, &LockRow{})
}

// Open opens (creating if needed) the state database inside dir.
func Open(dir, file string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}

	// A concurrent run waits up to 5s on SQLite's file lock.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.Join(dir, file))
	db, err := OpenFromURL("sqlite:" + dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	return NewStore(db), nil
}
