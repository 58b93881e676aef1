package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-todo-api/internal/flags"
	"go-todo-api/internal/models"
	"go-todo-api/internal/repositories"
	"go-todo-api/internal/services"
)

// TodoHandler はTodo関連のハンドラーを管理します。
type TodoHandler struct {
	todoService *services.TodoService
	resolver    *flags.Resolver
}

// NewTodoHandler は新しいTodoHandlerを作成します。
func NewTodoHandler(todoService *services.TodoService, resolver *flags.Resolver) *TodoHandler {
	if resolver == nil {
		resolver = flags.NewResolver(nil)
	}
	return &TodoHandler{todoService: todoService, resolver: resolver}
}

// GetTodosHandler はすべてのTodoを取得します。フラグが有効なら未完了を先頭に並べます。
func (h *TodoHandler) GetTodosHandler(c *gin.Context) {
	ctx := c.Request.Context()
	reorder := h.resolver.ReorderEnabled(ctx, c.Request)

	todos, err := h.todoService.ListTodos(ctx, reorder)
	if err != nil {
		_ = c.Error(NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, todos)
}

// CreateTodoHandler は新しいTodoを作成します。
func (h *TodoHandler) CreateTodoHandler(c *gin.Context) {
	var req models.CreateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(NewValidationError(bodyFieldErrors(err, "name"), err))
		return
	}

	ctx := c.Request.Context()
	reorder := h.resolver.ReorderEnabled(ctx, c.Request)

	createdTodo, err := h.todoService.CreateTodo(ctx, req.Name, reorder)
	if err != nil {
		_ = c.Error(NewInternalError(err))
		return
	}
	c.JSON(http.StatusCreated, createdTodo)
}

// MarkDoneHandler はTodoを完了にします。
func (h *TodoHandler) MarkDoneHandler(c *gin.Context) {
	h.setDone(c, true)
}

// MarkUndoneHandler はTodoを未完了に戻します。
func (h *TodoHandler) MarkUndoneHandler(c *gin.Context) {
	h.setDone(c, false)
}

func (h *TodoHandler) setDone(c *gin.Context, done bool) {
	// 数値でないIDは存在しないTodoとして扱う
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		_ = c.Error(NewNotFoundError(MsgTodoNotFound, repositories.ErrTodoNotFound))
		return
	}

	ctx := c.Request.Context()
	var todo *models.Todo
	if done {
		todo, err = h.todoService.MarkDone(ctx, id)
	} else {
		todo, err = h.todoService.MarkUndone(ctx, id)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrTodoNotFound) {
			_ = c.Error(NewNotFoundError(MsgTodoNotFound, err))
			return
		}
		_ = c.Error(NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, todo)
}
