// Package testutil はハンドラーの結合テスト用の環境を用意します。
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"go-todo-api/internal/config"
	"go-todo-api/internal/database"
	"go-todo-api/internal/events"
	"go-todo-api/internal/flags"
	"go-todo-api/internal/handlers"
	"go-todo-api/internal/logging"
	"go-todo-api/internal/metrics"
	"go-todo-api/internal/models"
	"go-todo-api/internal/ordering"
	"go-todo-api/internal/repositories"
	"go-todo-api/internal/routes"
	"go-todo-api/internal/services"
)

// DefaultNow はテスト用の固定時刻です。
var DefaultNow = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

// Clock はテストから進められる時計です。
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now は現在の時刻を返します。
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set は時刻を変更します。
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance は時刻を d だけ進めます。
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Options はテスト用ルーターの設定です。
type Options struct {
	// Flags は静的フラグの値です。FlagClient が設定されている場合は無視されます。
	Flags       map[string]bool
	FlagClient  flags.Client
	Publisher   events.Publisher
	Now         time.Time
	Development bool
	RateLimit   config.RateLimitConfig
	// DB が nil の場合はインメモリのSQLiteを使います。
	DB *sql.DB
}

// TestEnv はテスト用の環境一式です。
type TestEnv struct {
	DB      *sql.DB
	Router  *gin.Engine
	Repo    *repositories.TodoRepository
	Metrics *metrics.Metrics
	Clock   *Clock
}

// SetupTestDB はインメモリのSQLiteを開き、テーブルを作成します。
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err, "テスト用データベースを開けませんでした")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))
	return db
}

// SetupTestRouter はテスト用のGinルーターとリポジトリをセットアップします。
func SetupTestRouter(t *testing.T, opts Options) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := opts.DB
	if db == nil {
		db = SetupTestDB(t)
	}

	now := opts.Now
	if now.IsZero() {
		now = DefaultNow
	}
	clock := &Clock{now: now}

	client := opts.FlagClient
	if client == nil {
		client = flags.NewStaticClient(opts.Flags)
	}

	logger := logging.Discard()
	m := metrics.New()

	// リポジトリ
	todoRepo := repositories.NewTodoRepository(db)
	todoRepo.Now = clock.Now

	// サービス
	todoService := services.NewTodoService(todoRepo, ordering.NewEngine(clock.Now), opts.Publisher, logger)
	todoService.Metrics = m
	resolver := flags.NewResolver(client,
		flags.WithLogger(logger),
		flags.WithMetrics(m),
		flags.WithCookieName(flags.PostHogCookieName("phc_test")),
		flags.WithSessionTokens(flags.NewSessionTokens(SessionSecret, time.Hour)),
	)

	// ハンドラー
	todoHandler := handlers.NewTodoHandler(todoService, resolver)
	healthHandler := handlers.NewHealthHandler(db, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := routes.SetupRouter(ctx, routes.Deps{
		Todos:          todoHandler,
		Health:         healthHandler,
		Metrics:        m,
		Logger:         logger,
		Development:    opts.Development,
		RateLimitRPS:   opts.RateLimit.RPS,
		RateLimitBurst: opts.RateLimit.Burst,
	})

	return &TestEnv{DB: db, Router: r, Repo: todoRepo, Metrics: m, Clock: clock}
}

// SessionSecret はテスト用ルーターのセッショントークンの署名鍵です。
const SessionSecret = "test-session-secret"

// Do はリクエストを実行してレコーダーを返します。
func (e *TestEnv) Do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// CreateTestTodo はAPI経由でTodoを作成します。distinctID が空でなければ X-Distinct-Id を付けます。
func (e *TestEnv) CreateTestTodo(t *testing.T, name, distinctID string) *models.Todo {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"name": name})
	req, _ := http.NewRequest(http.MethodPost, "/todos", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if distinctID != "" {
		req.Header.Set("X-Distinct-Id", distinctID)
	}
	resp := e.Do(req)

	require.Equal(t, http.StatusCreated, resp.Code, "TODO作成に失敗しました: %s", resp.Body.String())

	var createdTodo models.Todo
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &createdTodo))
	return &createdTodo
}
