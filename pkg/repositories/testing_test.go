package repositories

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/database"
)

// newSQLiteDB opens a migrated in-memory store that is closed with the test.
func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), database.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations(db, database.DialectSQLite, zap.NewNop()))
	return db
}
