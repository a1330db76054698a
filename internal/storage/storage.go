// Package storage opens the configured ports.StorageProvider.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
	"github.com/infohyun/aramcrm-sub000/internal/storage/memory"
	"github.com/infohyun/aramcrm-sub000/internal/storage/sqldb"
)

// Open returns the store selected by cfg.Type: memory, sqlite (the default),
// postgres or mysql. The SQL types take their DSN from cfg.Database.
func Open(cfg config.StorageConfig) (ports.StorageProvider, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "", "sqlite":
		path := cfg.SQLite.Path
		if cfg.Database.DSN != "" {
			path = cfg.Database.DSN
		}
		if path == "" {
			return nil, fmt.Errorf("storage.sqlite.path is required")
		}
		if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return sqldb.NewSQLite(path)
	case "postgres", "mysql":
		driver := cfg.Database.Driver
		if driver == "" {
			driver = cfg.Type
		}
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("storage.database.dsn is required for %s", cfg.Type)
		}
		return sqldb.New(sqldb.Config{Driver: driver, DSN: cfg.Database.DSN})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
