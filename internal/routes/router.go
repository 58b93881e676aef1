// Package routesはroutingを行います。
package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go-todo-api/internal/handlers"
	"go-todo-api/internal/metrics"
)

// Deps はルーターが必要とする依存関係です。
type Deps struct {
	Todos   *handlers.TodoHandler
	Health  *handlers.HealthHandler
	Metrics *metrics.Metrics
	Logger  *log.Logger

	// Development が true の場合、500エラーの詳細をレスポンスに含めます。
	Development    bool
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRouter はGinルーターをセットアップし、すべてのエンドポイントを登録します。
// ctx はレート制限の掃除用ゴルーチンの寿命に使います。
func SetupRouter(ctx context.Context, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	r := gin.New()

	// CORS対策
	config := cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization", "X-Distinct-Id", RequestIDHeader},
		ExposeHeaders:   []string{RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}
	r.Use(ReferrerPolicy())
	r.Use(cors.New(config))
	r.Use(RequestID())
	r.Use(RequestLogger(logger, deps.Metrics))
	r.Use(ErrorHandler(logger, deps.Development))
	r.Use(Recovery(logger, deps.Development))

	r.NoRoute(NotFoundHandler)

	if deps.Health != nil {
		r.GET("/healthz", deps.Health.LivenessHandler)
		r.GET("/readyz", deps.Health.ReadinessHandler)
	}
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	todos := r.Group("/todos")
	todos.Use(RateLimit(ctx, deps.RateLimitRPS, deps.RateLimitBurst))
	{
		// /todos と /todos/ の両方で受け付ける
		todos.GET("", deps.Todos.GetTodosHandler)
		todos.GET("/", deps.Todos.GetTodosHandler)
		todos.POST("", deps.Todos.CreateTodoHandler)
		todos.POST("/", deps.Todos.CreateTodoHandler)
		todos.PUT("/:id/done", deps.Todos.MarkDoneHandler)
		todos.DELETE("/:id/done", deps.Todos.MarkUndoneHandler)
	}

	return r
}

// Server はルーターをhttp.Serverに載せます。
func Server(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
