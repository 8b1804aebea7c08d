package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqliteDefaults are the connection parameters applied to file-backed
// databases; entries in Config.Options override them. WAL keeps readers
// unblocked during writes and the busy timeout lets racing write
// transactions queue instead of failing fast.
var sqliteDefaults = map[string]string{
	"_foreign_keys": "1",
	"_journal_mode": "WAL",
	"_busy_timeout": "5000",
}

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		var err error
		dsn, err = buildSQLiteDSN(cfg)
		if err != nil {
			return nil, err
		}
	}

	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func buildSQLiteDSN(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Path)

	// an empty or :memory: path means a throwaway shared-cache database,
	// used by the default config and the test suites
	if path == "" || strings.EqualFold(path, ":memory:") {
		return "file::memory:?cache=shared&_foreign_keys=1", nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
	}

	params := mergeOptions(sqliteDefaults, cfg.Options)
	return fmt.Sprintf("file:%s?%s", filepath.ToSlash(path), strings.Join(params, "&")), nil
}
