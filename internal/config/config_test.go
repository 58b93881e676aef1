package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-todo-api/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, config.ProviderStatic, cfg.Flags.Provider)
	assert.Equal(t, config.DefaultFlagName, cfg.Flags.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Flags.Timeout)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	envFile := writeFile(t, ".env", "DB_DRIVER=sqlite3\nDB_PATH=/tmp/todos.db\nAPP_ENV=development\n")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("FLAGS_STATIC", "move-unfinished-todos=true, other=false")
	t.Setenv("FLAGS_TIMEOUT", "2s")
	t.Setenv("RATE_LIMIT_RPS", "5.5")

	cfg, err := config.Load(envFile)
	require.NoError(t, err)
	// godotenv.Load で設定された値はテスト後に残るため掃除する
	t.Cleanup(func() {
		os.Unsetenv("DB_DRIVER")
		os.Unsetenv("DB_PATH")
		os.Unsetenv("APP_ENV")
	})

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/todos.db", cfg.Database.DSN())
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, map[string]bool{"move-unfinished-todos": true, "other": false}, cfg.Flags.Static)
	assert.Equal(t, 2*time.Second, cfg.Flags.Timeout)
	assert.InDelta(t, 5.5, cfg.RateLimit.RPS, 0.0001)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
port: "7070"
database:
  driver: sqlite3
  path: ":memory:"
flags:
  provider: static
  name: move-unfinished-todos
  timeout: 250ms
  static:
    move-unfinished-todos: true
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, ":memory:", cfg.Database.DSN())
	assert.Equal(t, 250*time.Millisecond, cfg.Flags.Timeout)
	assert.True(t, cfg.Flags.Static["move-unfinished-todos"])
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
port = "6060"
log_level = "debug"

[database]
driver = "sqlite3"
path = "todos.db"

[events]
nats_url = "nats://127.0.0.1:4222"
subject = "app.todos"
`)
	cfg := config.Default()
	require.NoError(t, config.LoadFile(path, &cfg))

	assert.Equal(t, "6060", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "todos.db", cfg.Database.Path)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Events.NATSURL)
	assert.Equal(t, "app.todos", cfg.Events.Subject)
	// ファイルに無い値はデフォルトのまま
	assert.Equal(t, config.DefaultFlagName, cfg.Flags.Name)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "config.ini", "port=1")
	cfg := config.Default()
	require.Error(t, config.LoadFile(path, &cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *config.Config) {}},
		{name: "unknown driver", mutate: func(c *config.Config) { c.Database.Driver = "oracle" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *config.Config) { c.Flags.Provider = "launchdarkly" }, wantErr: true},
		{name: "posthog without key", mutate: func(c *config.Config) { c.Flags.Provider = config.ProviderPostHog }, wantErr: true},
		{name: "posthog with key", mutate: func(c *config.Config) {
			c.Flags.Provider = config.ProviderPostHog
			c.Flags.PostHogKey = "phc_test"
		}},
		{name: "empty flag name", mutate: func(c *config.Config) { c.Flags.Name = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseStaticFlags(t *testing.T) {
	flags, err := config.ParseStaticFlags("a=true,b=0, c ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": true}, flags)

	_, err = config.ParseStaticFlags("a=maybe")
	assert.Error(t, err)

	_, err = config.ParseStaticFlags("=true")
	assert.Error(t, err)
}

func TestDatabaseConfig_MySQLDSN(t *testing.T) {
	d := config.DatabaseConfig{
		Driver: config.DriverMySQL,
		User:   "app",
		Pass:   "secret",
		Host:   "db",
		Port:   "3306",
		Name:   "todos",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "app:secret@tcp(db:3306)/todos")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "clientFoundRows=true")
}
