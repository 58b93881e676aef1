// Package modelsはTodoを定義します。
package models

import (
	"time"
)

// Todo は ToDoタスクを表します。
// JSONタグはクライアントとの通信用で、キーはキャメルケースです。
type Todo struct {
	ID        int        `json:"id"`        // 主キー (自動採番)
	Name      string     `json:"name"`      // タスク名 (作成後は変更しない)
	Done      bool       `json:"done"`      // 完了状態
	Date      *time.Time `json:"date"`      // 作業予定日 (未設定ならnull)
	CreatedAt time.Time  `json:"createdAt"` // 作成日時
	UpdatedAt time.Time  `json:"updatedAt"` // 更新日時
}

// CreateTodoRequest は POST /todos のリクエストボディです。
// nameは必須かつ255文字 (コードポイント) 以下。前後の空白はトリムしません。
type CreateTodoRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}
