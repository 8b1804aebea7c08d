package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/envault/envault/internal/database"
)

// testCost keeps bcrypt cheap in tests.
const testCost = 4

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// named per-test memory database so pooled connections share state
	// without leaking rows between tests
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)

	return openTestDSN(t, dsn)
}

// openConcurrentTestDB backs the database with a real file so concurrent
// write transactions serialise on the write lock instead of failing fast.
func openConcurrentTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "envault.db")
	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)

	return openTestDSN(t, dsn)
}

func openTestDSN(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func newTestServices(t *testing.T, db *gorm.DB) (*UserService, *PermissionService, *InviteService) {
	t.Helper()

	users, err := NewUserService(db, WithBcryptCost(testCost))
	require.NoError(t, err)

	perms, err := NewPermissionService(db)
	require.NoError(t, err)

	invites, err := NewInviteService(db, perms, WithInviteBcryptCost(testCost))
	require.NoError(t, err)

	return users, perms, invites
}
