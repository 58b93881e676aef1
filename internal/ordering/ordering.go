// Package ordering は Todo一覧の並び替えと作業予定日の繰り延べを行います。
//
// 入力スライスと要素は変更せず、常にコピーを返します。
package ordering

import (
	"slices"
	"time"

	"go-todo-api/internal/models"
)

// Tomorrow は now の暦日を1日進めた時刻を返します (時刻部分は保持)。
func Tomorrow(now time.Time) time.Time {
	return now.AddDate(0, 0, 1)
}

// Apply は表示用のTodo列を返します。
//
// reorderEnabled が false の場合は入力と同じ順序・同じ値のコピーを返します。
// true の場合は未完了を完了より前に並べ (各グループ内は createdAt 昇順、同値は入力順)、
// 未完了のTodoの date を Tomorrow(now) に設定します。完了済みのみの場合は並び替えません。
func Apply(todos []models.Todo, reorderEnabled bool, now time.Time) []models.Todo {
	out := make([]models.Todo, len(todos))
	copy(out, todos)

	if !reorderEnabled || !hasUnfinished(out) {
		return out
	}

	slices.SortStableFunc(out, func(a, b models.Todo) int {
		if a.Done != b.Done {
			if !a.Done {
				return -1
			}
			return 1
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	tomorrow := Tomorrow(now)
	for i := range out {
		if out[i].Done {
			continue
		}
		d := tomorrow
		out[i].Date = &d
	}
	return out
}

func hasUnfinished(todos []models.Todo) bool {
	for _, t := range todos {
		if !t.Done {
			return true
		}
	}
	return false
}

// Engine は時計を1回だけ読んで Apply を呼び出します。
type Engine struct {
	now func() time.Time
}

// NewEngine は新しいEngineを作成します。clock が nil の場合は time.Now を使います。
func NewEngine(clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{now: clock}
}

// Now はEngineの時計の現在時刻を返します。
func (e *Engine) Now() time.Time {
	return e.now()
}

// Order は todos を並び替え、未完了のTodoの予定日を繰り延べます。
func (e *Engine) Order(todos []models.Todo, reorderEnabled bool) []models.Todo {
	return Apply(todos, reorderEnabled, e.now())
}
