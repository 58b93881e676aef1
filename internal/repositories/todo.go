// Package repositories はデータベース操作を行うリポジトリを提供します。
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-todo-api/internal/models"
)

// ErrTodoNotFound はTODOが見つからない場合のエラーです。
var ErrTodoNotFound = errors.New("todo not found")

// TodoStore はハンドラーやサービスから使うTodoの永続化インターフェースです。
type TodoStore interface {
	FindAll(ctx context.Context) ([]models.Todo, error)
	Create(ctx context.Context, t *models.Todo) (*models.Todo, error)
	FindByID(ctx context.Context, id int) (*models.Todo, error)
	UpdateDone(ctx context.Context, id int, done bool) (*models.Todo, error)
	UpdateDate(ctx context.Context, id int, date time.Time) (*models.Todo, error)
}

// TodoRepository はdatabase/sqlでtodosテーブルを操作します。
// MySQLとSQLiteの両方で動くように、プレースホルダーは ? のみを使います。
type TodoRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

var _ TodoStore = (*TodoRepository)(nil)

// NewTodoRepository は新しいTodoRepositoryインスタンスを作成します。
func NewTodoRepository(db *sql.DB) *TodoRepository {
	return &TodoRepository{DB: db, Now: time.Now}
}

const selectTodoColumns = "SELECT id, name, done, date, created_at, updated_at FROM todos"

func (r *TodoRepository) now() time.Time {
	clock := r.Now
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Microsecond)
}

// Create は新しいTodoをデータベースに挿入し、ID・作成日時・更新日時をセットして返します。
func (r *TodoRepository) Create(ctx context.Context, t *models.Todo) (*models.Todo, error) {
	now := r.now()
	query := "INSERT INTO todos (name, done, date, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"

	result, err := r.DB.ExecContext(ctx, query, t.Name, t.Done, nullTime(t.Date), now, now)
	if err != nil {
		return nil, fmt.Errorf("could not insert todo: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("could not get last insert ID: %w", err)
	}

	created := *t
	created.ID = int(id)
	created.CreatedAt = now
	created.UpdatedAt = now
	if t.Date != nil {
		d := t.Date.UTC().Truncate(time.Microsecond)
		created.Date = &d
	}
	return &created, nil
}

// FindAll はすべてのTodoを挿入順 (ID昇順) で取得します。
func (r *TodoRepository) FindAll(ctx context.Context) ([]models.Todo, error) {
	rows, err := r.DB.QueryContext(ctx, selectTodoColumns+" ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("could not query todos: %w", err)
	}
	defer rows.Close()

	todos := []models.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan todo: %w", err)
		}
		todos = append(todos, *t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}

	return todos, nil
}

// FindByID は指定されたIDのTodoを取得します。存在しない場合は ErrTodoNotFound を返します。
func (r *TodoRepository) FindByID(ctx context.Context, id int) (*models.Todo, error) {
	t, err := scanTodo(r.DB.QueryRowContext(ctx, selectTodoColumns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTodoNotFound
		}
		return nil, fmt.Errorf("could not query todo: %w", err)
	}
	return t, nil
}

// UpdateDone は done だけを更新し、更新後のTodoを返します。
func (r *TodoRepository) UpdateDone(ctx context.Context, id int, done bool) (*models.Todo, error) {
	return r.update(ctx, "UPDATE todos SET done = ?, updated_at = ? WHERE id = ?", id, done)
}

// UpdateDate は作業予定日だけを更新し、更新後のTodoを返します。
func (r *TodoRepository) UpdateDate(ctx context.Context, id int, date time.Time) (*models.Todo, error) {
	return r.update(ctx, "UPDATE todos SET date = ?, updated_at = ? WHERE id = ?", id, date.UTC().Truncate(time.Microsecond))
}

func (r *TodoRepository) update(ctx context.Context, query string, id int, value any) (*models.Todo, error) {
	result, err := r.DB.ExecContext(ctx, query, value, r.now(), id)
	if err != nil {
		return nil, fmt.Errorf("could not update todo: %w", err)
	}

	// MySQLはDSNでclientFoundRowsを有効にしているため、値が変わらなくても一致行数が返る
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrTodoNotFound
	}

	return r.FindByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (*models.Todo, error) {
	var (
		t    models.Todo
		date sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Done, &date, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if date.Valid {
		d := date.Time.UTC()
		t.Date = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC().Truncate(time.Microsecond), Valid: true}
}
