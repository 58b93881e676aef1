package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// MsgTodoNotFound はTodoが存在しない場合のレスポンス本文です。
const MsgTodoNotFound = "Todo not found"

// FieldError はバリデーションエラー1件です。express-validator と同じ形で返します。
type FieldError struct {
	Type     string `json:"type"`
	Value    any    `json:"value"`
	Msg      string `json:"msg"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

// HTTPError はハンドラーが c.Error で渡すエラーです。routes.ErrorHandler がレスポンスに変換します。
type HTTPError struct {
	Status  int
	Message string
	// Plain が true の場合、Message をテキストで返します。
	Plain  bool
	Fields []FieldError
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewNotFoundError はテキストで返す404エラーを作成します。
func NewNotFoundError(message string, err error) *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Message: message, Plain: true, Err: err}
}

// NewValidationError は400エラーを作成します。
func NewValidationError(fields []FieldError, err error) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Message: "Bad Request", Fields: fields, Err: err}
}

// NewInternalError は500エラーを作成します。
func NewInternalError(err error) *HTTPError {
	return &HTTPError{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError), Err: err}
}

// AsHTTPError は err を HTTPError に変換します。HTTPError でないエラーは500として扱います。
func AsHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return NewInternalError(err)
}

func invalidBodyField(path string, value any) FieldError {
	return FieldError{
		Type:     "field",
		Value:    value,
		Msg:      "Invalid value",
		Path:     path,
		Location: "body",
	}
}

// bodyFieldErrors はリクエストボディのバインドエラーをフィールドエラーに変換します。
// JSONとして読めない場合は fallbackPath のエラーとします。
func bodyFieldErrors(err error, fallbackPath string) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, invalidBodyField(jsonFieldName(fe), fe.Value()))
		}
		return fields
	}
	return []FieldError{invalidBodyField(fallbackPath, nil)}
}

// jsonFieldName は構造体のフィールド名をJSONのキーに変換します。
func jsonFieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Name":
		return "name"
	default:
		return fe.Field()
	}
}
