package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"go-todo-api/internal/config"
	"go-todo-api/internal/database"
	"go-todo-api/internal/events"
	"go-todo-api/internal/flags"
	"go-todo-api/internal/handlers"
	"go-todo-api/internal/metrics"
	"go-todo-api/internal/ordering"
	"go-todo-api/internal/repositories"
	"go-todo-api/internal/routes"
	"go-todo-api/internal/services"
)

// app は起動時に組み立てた依存関係を保持し、終了時にまとめて閉じます。
type app struct {
	router  *gin.Engine
	db      *sql.DB
	closers []func() error
	logger  *log.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	a := &app{logger: logger}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if err := database.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		a.Close()
		return nil, err
	}

	m := metrics.New()

	client, err := a.newFlagClient(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.newPublisher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// リポジトリ
	todoRepo := repositories.NewTodoRepository(db)

	// サービス
	todoService := services.NewTodoService(todoRepo, ordering.NewEngine(nil), publisher, logger)
	todoService.Metrics = m

	opts := []flags.Option{
		flags.WithFlagName(cfg.Flags.Name),
		flags.WithTimeout(cfg.Flags.Timeout),
		flags.WithLogger(logger),
		flags.WithMetrics(m),
	}
	if cfg.Flags.PostHogKey != "" {
		opts = append(opts, flags.WithCookieName(flags.PostHogCookieName(cfg.Flags.PostHogKey)))
	}
	if cfg.Flags.SessionSecret != "" {
		opts = append(opts, flags.WithSessionTokens(flags.NewSessionTokens(cfg.Flags.SessionSecret, 0)))
	}
	resolver := flags.NewResolver(client, opts...)

	// ハンドラー
	todoHandler := handlers.NewTodoHandler(todoService, resolver)
	healthHandler := handlers.NewHealthHandler(db, logger)

	a.router = routes.SetupRouter(ctx, routes.Deps{
		Todos:          todoHandler,
		Health:         healthHandler,
		Metrics:        m,
		Logger:         logger,
		Development:    cfg.IsDevelopment(),
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})
	return a, nil
}

// newFlagClient は設定に応じたフラグClientを作成します。Redisが設定されていればキャッシュを挟みます。
func (a *app) newFlagClient(ctx context.Context, cfg config.Config) (flags.Client, error) {
	var client flags.Client
	switch cfg.Flags.Provider {
	case config.ProviderPostHog:
		ph, err := flags.NewPostHogClient(cfg.Flags.PostHogKey, cfg.Flags.PostHogHost, cfg.Flags.PostHogPersonal)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ph.Close)
		client = ph
	default:
		client = flags.NewStaticClient(cfg.Flags.Static)
	}

	if cfg.Cache.RedisAddr == "" {
		return client, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// キャッシュなしでも動作できるので起動は続ける
		a.logger.Warn("redis unavailable, flag cache disabled", "addr", cfg.Cache.RedisAddr, "err", err)
		rdb.Close()
		return client, nil
	}
	a.closers = append(a.closers, rdb.Close)
	return flags.NewCachedClient(client, rdb, cfg.Cache.TTL, a.logger), nil
}

// newPublisher はNATSが設定されていればNATSPublisherを、なければNopを返します。
func (a *app) newPublisher(cfg config.Config) (events.Publisher, error) {
	if cfg.Events.NATSURL == "" {
		return events.Nop{}, nil
	}
	pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
	if err != nil {
		return nil, fmt.Errorf("could not start todo events: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// Server はルーターを載せたhttp.Serverを返します。
func (a *app) Server(addr string) *http.Server {
	return routes.Server(addr, a.router)
}

// Close は作成した順と逆順にリソースを閉じます。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", "err", err)
		}
	}
	a.closers = nil
}
