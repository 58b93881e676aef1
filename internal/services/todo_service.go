package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"go-todo-api/internal/events"
	"go-todo-api/internal/metrics"
	"go-todo-api/internal/models"
	"go-todo-api/internal/ordering"
	"go-todo-api/internal/repositories"
)

// TodoService はTodo関連のビジネスロジックを扱います。
type TodoService struct {
	todoRepo  repositories.TodoStore
	engine    *ordering.Engine
	publisher events.Publisher
	logger    *log.Logger

	// Metrics が設定されていればイベント配信の結果を記録します。
	Metrics *metrics.Metrics
}

// NewTodoService は新しいTodoServiceを作成します。
// publisher が nil の場合はイベントを配信しません。
func NewTodoService(todoRepo repositories.TodoStore, engine *ordering.Engine, publisher events.Publisher, logger *log.Logger) *TodoService {
	if engine == nil {
		engine = ordering.NewEngine(nil)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TodoService{todoRepo: todoRepo, engine: engine, publisher: publisher, logger: logger}
}

// ListTodos はすべてのTodoを取得し、フラグに応じて並び替えます。
// 繰り延べた予定日は保存しません。
func (s *TodoService) ListTodos(ctx context.Context, reorderEnabled bool) ([]models.Todo, error) {
	todos, err := s.todoRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list todos: %w", err)
	}
	return s.engine.Order(todos, reorderEnabled), nil
}

// CreateTodo は新しいTodoを作成します。予定日は作成時刻で、フラグが有効なら翌日に繰り延べて保存します。
func (s *TodoService) CreateTodo(ctx context.Context, name string, reorderEnabled bool) (*models.Todo, error) {
	now := s.engine.Now()
	created, err := s.todoRepo.Create(ctx, &models.Todo{Name: name, Done: false, Date: &now})
	if err != nil {
		return nil, fmt.Errorf("could not create todo: %w", err)
	}

	if reorderEnabled {
		scheduled, err := s.todoRepo.UpdateDate(ctx, created.ID, ordering.Tomorrow(now))
		if err != nil {
			return nil, fmt.Errorf("could not schedule todo %d: %w", created.ID, err)
		}
		created = scheduled
	}

	s.publish(ctx, events.TypeCreated, created)
	return created, nil
}

// MarkDone はTodoを完了にします。存在しない場合は repositories.ErrTodoNotFound を返します。
func (s *TodoService) MarkDone(ctx context.Context, id int) (*models.Todo, error) {
	return s.setDone(ctx, id, true)
}

// MarkUndone はTodoを未完了に戻します。存在しない場合は repositories.ErrTodoNotFound を返します。
func (s *TodoService) MarkUndone(ctx context.Context, id int) (*models.Todo, error) {
	return s.setDone(ctx, id, false)
}

func (s *TodoService) setDone(ctx context.Context, id int, done bool) (*models.Todo, error) {
	if _, err := s.todoRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}

	updated, err := s.todoRepo.UpdateDone(ctx, id, done)
	if err != nil {
		return nil, err
	}

	eventType := events.TypeUndone
	if done {
		eventType = events.TypeDone
	}
	s.publish(ctx, eventType, updated)
	return updated, nil
}

// publish はイベントを配信します。失敗してもリクエストは失敗させません。
func (s *TodoService) publish(ctx context.Context, eventType string, todo *models.Todo) {
	err := s.publisher.Publish(ctx, events.Event{
		Type: eventType,
		Todo: *todo,
		At:   s.engine.Now().UTC(),
	})
	s.Metrics.ObserveEvent(eventType, err)
	if err != nil {
		s.logger.Warn("failed to publish todo event", "type", eventType, "id", todo.ID, "err", err)
	}
}
