package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-todo-api/internal/config"
	"go-todo-api/internal/database"
)

func TestOpenAndMigrate_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))
	// 2回目も成功すること (IF NOT EXISTS)
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM todos").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestMigrate_UnsupportedDriver(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, database.Migrate(ctx, db, "oracle"))
}
