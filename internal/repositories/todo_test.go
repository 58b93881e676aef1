package repositories_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-todo-api/internal/database"
	"go-todo-api/internal/models"
	"go-todo-api/internal/repositories"
)

func setupRepo(t *testing.T) (*sql.DB, *repositories.TodoRepository) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return db, repositories.NewTodoRepository(db)
}

func TestTodoRepository_CreateAndFindByID(t *testing.T) {
	_, repo := setupRepo(t)
	ctx := context.Background()
	fixed := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	repo.Now = func() time.Time { return fixed }

	created, err := repo.Create(ctx, &models.Todo{Name: "Buy milk", Date: &fixed})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Buy milk", created.Name)
	assert.False(t, created.Done)
	assert.Equal(t, fixed, created.CreatedAt)
	assert.Equal(t, fixed, created.UpdatedAt)

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "Buy milk", found.Name)
	assert.True(t, fixed.Equal(found.CreatedAt))
	require.NotNil(t, found.Date)
	assert.True(t, fixed.Equal(*found.Date))
}

func TestTodoRepository_FindByID_NotFound(t *testing.T) {
	_, repo := setupRepo(t)

	_, err := repo.FindByID(context.Background(), 999)
	require.ErrorIs(t, err, repositories.ErrTodoNotFound)
}

func TestTodoRepository_FindAll_InsertionOrder(t *testing.T) {
	_, repo := setupRepo(t)
	ctx := context.Background()

	todos, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, todos, "empty table returns an empty slice")
	assert.Empty(t, todos)

	for _, name := range []string{"first", "second", "third"} {
		_, err := repo.Create(ctx, &models.Todo{Name: name})
		require.NoError(t, err)
	}

	todos, err = repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 3)
	assert.Equal(t, "first", todos[0].Name)
	assert.Equal(t, "third", todos[2].Name)
	assert.Nil(t, todos[0].Date)
}

func TestTodoRepository_UpdateDone(t *testing.T) {
	_, repo := setupRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.Todo{Name: "toggle me"})
	require.NoError(t, err)

	t.Run("mark done", func(t *testing.T) {
		updated, err := repo.UpdateDone(ctx, created.ID, true)
		require.NoError(t, err)
		assert.True(t, updated.Done)
	})

	t.Run("mark done again is a no-op", func(t *testing.T) {
		updated, err := repo.UpdateDone(ctx, created.ID, true)
		require.NoError(t, err)
		assert.True(t, updated.Done)
	})

	t.Run("mark undone", func(t *testing.T) {
		updated, err := repo.UpdateDone(ctx, created.ID, false)
		require.NoError(t, err)
		assert.False(t, updated.Done)
		assert.Equal(t, "toggle me", updated.Name)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.UpdateDone(ctx, 999, true)
		require.ErrorIs(t, err, repositories.ErrTodoNotFound)
	})
}

func TestTodoRepository_UpdateDate(t *testing.T) {
	_, repo := setupRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.Todo{Name: "reschedule"})
	require.NoError(t, err)

	tomorrow := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	updated, err := repo.UpdateDate(ctx, created.ID, tomorrow)
	require.NoError(t, err)
	require.NotNil(t, updated.Date)
	assert.True(t, tomorrow.Equal(*updated.Date))
	assert.False(t, updated.Done)

	_, err = repo.UpdateDate(ctx, 999, tomorrow)
	require.ErrorIs(t, err, repositories.ErrTodoNotFound)
}

func TestTodoRepository_ClosedDatabase(t *testing.T) {
	db, repo := setupRepo(t)
	require.NoError(t, db.Close())

	_, err := repo.FindAll(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, repositories.ErrTodoNotFound)
}
