// Package dbtest opens migrated databases for tests.
package dbtest

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"playmatch/rooms/internal/database"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open returns a migrated sqlite database private to t. The pool is limited to a
// single connection, which also serializes concurrent transactions.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=0", name)
	db, err := gorm.Open(sqlite.Open(dsn), database.Config(zerolog.Nop()))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// PostgresEnv names the DSN of a disposable Postgres database for tests that
// need real row locks and concurrent connections.
const PostgresEnv = "TEST_DATABASE_URL"

// OpenPostgres connects to the database named by PostgresEnv, migrates it and
// empties every table. The test is skipped when the variable is unset.
func OpenPostgres(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresEnv)
	if dsn == "" {
		t.Skipf("%s is not set", PostgresEnv)
	}
	db, err := database.Connect(dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, db.Exec("TRUNCATE TABLE profiles, users, rooms, games RESTART IDENTITY CASCADE").Error)
	return db
}
