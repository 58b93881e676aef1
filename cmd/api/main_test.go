package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-todo-api/internal/config"
	"go-todo-api/internal/logging"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Env = "development"
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = ":memory:"
	cfg.Flags.Static = map[string]bool{config.DefaultFlagName: true}
	return cfg
}

func TestNewApp_Static(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, testConfig(), logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	srv := a.Server(":0")
	assert.Equal(t, ":0", srv.Addr)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/todos", strings.NewReader(`{"name":"Buy milk"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Distinct-Id", "user-1")
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/readyz", nil)
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewApp_WithRedisAndNATS(t *testing.T) {
	mr := miniredis.RunT(t)

	ns, err := natssrv.NewServer(&natssrv.Options{Port: -1})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(ns.Shutdown)

	cfg := testConfig()
	cfg.Cache.RedisAddr = mr.Addr()
	cfg.Events.NATSURL = ns.ClientURL()
	cfg.Flags.SessionSecret = "secret"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/todos", nil)
	req.Header.Set("X-Distinct-Id", "user-1")
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// フラグの評価結果がRedisにキャッシュされている
	assert.NotEmpty(t, mr.Keys())
}

func TestNewApp_RedisUnavailableStillStarts(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Cache.RedisAddr = addr

	a, err := newApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	a.Close()
}

func TestNewApp_Errors(t *testing.T) {
	t.Run("unreachable nats", func(t *testing.T) {
		cfg := testConfig()
		cfg.Events.NATSURL = "nats://127.0.0.1:1"
		_, err := newApp(context.Background(), cfg, logging.Discard())
		assert.Error(t, err)
	})

	t.Run("posthog without key", func(t *testing.T) {
		cfg := testConfig()
		cfg.Flags.Provider = config.ProviderPostHog
		_, err := newApp(context.Background(), cfg, logging.Discard())
		assert.Error(t, err)
	})
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Port = "0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logging.Discard()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
