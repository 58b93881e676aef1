package flags

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"go-todo-api/internal/metrics"
)

const (
	// DefaultHeaderName はdistinct idを直接渡すヘッダーです。
	DefaultHeaderName = "X-Distinct-Id"
	// DefaultTimeout はフラグ評価1回あたりのタイムアウトです。
	DefaultTimeout = 500 * time.Millisecond
)

// PostHogCookieName はposthog-jsがブラウザに保存するクッキー名を返します。
func PostHogCookieName(projectKey string) string {
	return "ph_" + projectKey + "_posthog"
}

// Resolver はリクエストごとに並び替え機能の有効/無効を決めます。
type Resolver struct {
	client     Client
	flag       string
	timeout    time.Duration
	headerName string
	cookieName string
	tokens     *SessionTokens
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// Option はResolverの設定を変更します。
type Option func(*Resolver)

// WithFlagName は評価するフラグ名を設定します。
func WithFlagName(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.flag = name
		}
	}
}

// WithTimeout はフラグ評価のタイムアウトを設定します。
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithHeaderName はdistinct idを読むヘッダー名を設定します。
func WithHeaderName(name string) Option {
	return func(r *Resolver) { r.headerName = name }
}

// WithCookieName はdistinct idを読むPostHogクッキー名を設定します。
func WithCookieName(name string) Option {
	return func(r *Resolver) { r.cookieName = name }
}

// WithSessionTokens はAuthorizationヘッダーのセッショントークンからdistinct idを読めるようにします。
func WithSessionTokens(tokens *SessionTokens) Option {
	return func(r *Resolver) { r.tokens = tokens }
}

// WithLogger はロガーを設定します。
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics はフラグ評価の結果を記録するメトリクスを設定します。
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver は新しいResolverを作成します。client が nil の場合は常に無効と判定します。
func NewResolver(client Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:     client,
		flag:       "move-unfinished-todos",
		timeout:    DefaultTimeout,
		headerName: DefaultHeaderName,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FlagName は評価するフラグ名を返します。
func (r *Resolver) FlagName() string {
	return r.flag
}

// DistinctID はリクエストからdistinct idを取り出します。
// ヘッダー、セッショントークン、PostHogクッキーの順に探します。
func (r *Resolver) DistinctID(req *http.Request) (string, bool) {
	if r.headerName != "" {
		if id := strings.TrimSpace(req.Header.Get(r.headerName)); id != "" {
			return id, true
		}
	}

	if r.tokens != nil {
		if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			id, err := r.tokens.Parse(strings.TrimPrefix(auth, "Bearer "))
			if err == nil {
				return id, true
			}
			r.logger.Debug("ignoring session token", "err", err)
		}
	}

	if r.cookieName != "" {
		if cookie, err := req.Cookie(r.cookieName); err == nil {
			if id, ok := distinctIDFromCookie(cookie.Value); ok {
				return id, true
			}
			r.logger.Debug("ignoring malformed posthog cookie", "cookie", r.cookieName)
		}
	}

	return "", false
}

func distinctIDFromCookie(value string) (string, bool) {
	if decoded, err := url.QueryUnescape(value); err == nil {
		value = decoded
	}
	var payload struct {
		DistinctID string `json:"distinct_id"`
	}
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return "", false
	}
	if payload.DistinctID == "" {
		return "", false
	}
	return payload.DistinctID, true
}

// ReorderEnabled はリクエストに対してフラグを評価します。
// distinct idがない場合はフラグサービスに問い合わせず false、評価に失敗した場合も false を返します。
func (r *Resolver) ReorderEnabled(ctx context.Context, req *http.Request) bool {
	if r.client == nil {
		r.metrics.ObserveFlag(r.flag, metrics.FlagSkipped)
		return false
	}
	distinctID, ok := r.DistinctID(req)
	if !ok {
		r.metrics.ObserveFlag(r.flag, metrics.FlagSkipped)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	enabled, err := r.client.IsEnabled(ctx, r.flag, distinctID)
	if err != nil {
		r.logger.Warn("flag evaluation failed, reordering disabled", "flag", r.flag, "distinct_id", distinctID, "err", err)
		r.metrics.ObserveFlag(r.flag, metrics.FlagError)
		return false
	}

	if enabled {
		r.metrics.ObserveFlag(r.flag, metrics.FlagEnabled)
	} else {
		r.metrics.ObserveFlag(r.flag, metrics.FlagDisabled)
	}
	return enabled
}
