// Package config はアプリケーションの設定を読み込みます。
//
// 設定ファイル (CONFIG_FILE, YAML/TOML) を読んだ後、.env と環境変数で上書きします。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定です。
type Config struct {
	Env       string          `yaml:"env" toml:"env"`
	Port      string          `yaml:"port" toml:"port"`
	LogLevel  string          `yaml:"log_level" toml:"log_level"`
	LogFormat string          `yaml:"log_format" toml:"log_format"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Flags     FlagsConfig     `yaml:"flags" toml:"flags"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Events    EventsConfig    `yaml:"events" toml:"events"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// DatabaseConfig はTodoストアの接続設定です。
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // mysql または sqlite3
	User   string `yaml:"user" toml:"user"`
	Pass   string `yaml:"pass" toml:"pass"`
	Host   string `yaml:"host" toml:"host"`
	Port   string `yaml:"port" toml:"port"`
	Name   string `yaml:"name" toml:"name"`
	Path   string `yaml:"path" toml:"path"` // sqlite3 のファイルパス
}

// FlagsConfig はフィーチャーフラグサービスの設定です。
type FlagsConfig struct {
	Provider        string          `yaml:"provider" toml:"provider"` // static または posthog
	Name            string          `yaml:"name" toml:"name"`
	Timeout         time.Duration   `yaml:"timeout" toml:"timeout"`
	PostHogKey      string          `yaml:"posthog_key" toml:"posthog_key"`
	PostHogHost     string          `yaml:"posthog_host" toml:"posthog_host"`
	PostHogPersonal string          `yaml:"posthog_personal_key" toml:"posthog_personal_key"`
	Static          map[string]bool `yaml:"static" toml:"static"`
	SessionSecret   string          `yaml:"session_secret" toml:"session_secret"`
}

// CacheConfig はフラグ評価結果のRedisキャッシュ設定です。RedisAddrが空なら無効。
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" toml:"redis_db"`
	TTL           time.Duration `yaml:"ttl" toml:"ttl"`
}

// EventsConfig はTodoイベント配信 (NATS) の設定です。NATSURLが空なら無効。
type EventsConfig struct {
	NATSURL string `yaml:"nats_url" toml:"nats_url"`
	Subject string `yaml:"subject" toml:"subject"`
}

// RateLimitConfig はクライアント単位のレート制限設定です。RPS <= 0 なら無効。
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"

	ProviderStatic  = "static"
	ProviderPostHog = "posthog"

	// DefaultFlagName は並び替え機能のフラグ名です。
	DefaultFlagName = "move-unfinished-todos"
)

// Default はデフォルト値で埋めたConfigを返します。
func Default() Config {
	return Config{
		Env:       "production",
		Port:      "8080",
		LogLevel:  "info",
		LogFormat: "text",
		Database: DatabaseConfig{
			Driver: DriverMySQL,
			Host:   "127.0.0.1",
			Port:   "3306",
			Name:   "todos",
			Path:   "todos.db",
		},
		Flags: FlagsConfig{
			Provider:    ProviderStatic,
			Name:        DefaultFlagName,
			Timeout:     500 * time.Millisecond,
			PostHogHost: "https://eu.i.posthog.com",
			Static:      map[string]bool{},
		},
		Cache: CacheConfig{
			TTL: 30 * time.Second,
		},
		Events: EventsConfig{
			Subject: "todos",
		},
		RateLimit: RateLimitConfig{
			RPS:   0,
			Burst: 20,
		},
	}
}

// Load は .env (存在すれば) と環境変数、CONFIG_FILE から設定を読み込みます。
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// .env が無いのは正常 (コンテナでは環境変数を直接渡す)
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv は環境変数で設定を上書きします。
func applyEnv(cfg *Config) error {
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Pass, "DB_PASS")
	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.Path, "DB_PATH")

	setString(&cfg.Flags.Provider, "FLAGS_PROVIDER")
	setString(&cfg.Flags.Name, "FLAGS_NAME")
	setString(&cfg.Flags.PostHogKey, "POSTHOG_API_KEY")
	setString(&cfg.Flags.PostHogHost, "POSTHOG_HOST")
	setString(&cfg.Flags.PostHogPersonal, "POSTHOG_PERSONAL_API_KEY")
	setString(&cfg.Flags.SessionSecret, "SESSION_SECRET")
	if err := setDuration(&cfg.Flags.Timeout, "FLAGS_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("FLAGS_STATIC"); v != "" {
		static, err := ParseStaticFlags(v)
		if err != nil {
			return err
		}
		cfg.Flags.Static = static
	}

	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")
	if err := setInt(&cfg.Cache.RedisDB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Cache.TTL, "FLAGS_CACHE_TTL"); err != nil {
		return err
	}

	setString(&cfg.Events.NATSURL, "NATS_URL")
	setString(&cfg.Events.Subject, "NATS_SUBJECT")

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", v, err)
		}
		cfg.RateLimit.RPS = rps
	}
	return setInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST")
}

// ParseStaticFlags は "flag-a=true,flag-b=false" 形式の文字列をパースします。
func ParseStaticFlags(s string) (map[string]bool, error) {
	flags := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid static flag %q", part)
		}
		if !found {
			flags[name] = true
			continue
		}
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid static flag %q: %w", part, err)
		}
		flags[name] = enabled
	}
	return flags, nil
}

// Validate は設定値の整合性を確認します。
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Flags.Provider {
	case ProviderStatic:
	case ProviderPostHog:
		if c.Flags.PostHogKey == "" {
			return fmt.Errorf("POSTHOG_API_KEY is required when FLAGS_PROVIDER=%s", ProviderPostHog)
		}
	default:
		return fmt.Errorf("unsupported FLAGS_PROVIDER %q", c.Flags.Provider)
	}
	if c.Flags.Name == "" {
		return fmt.Errorf("FLAGS_NAME must not be empty")
	}
	return nil
}

// IsDevelopment は開発環境かどうかを返します。エラー詳細をレスポンスに含めるかに使います。
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DSN はドライバーに渡す接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	mc := mysql.NewConfig()
	mc.User = d.User
	mc.Passwd = d.Pass
	mc.Net = "tcp"
	mc.Addr = d.Host + ":" + d.Port
	mc.DBName = d.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	// 値が変わらないUPDATEでも一致行数を返させる (done/undone を冪等にする)
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
