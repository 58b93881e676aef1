package routes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"go-todo-api/internal/handlers"
	"go-todo-api/internal/metrics"
)

// RequestIDHeader はリクエストIDのヘッダー名です。
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

// ReferrerPolicy はすべてのレスポンスに Referrer-Policy: no-referrer を付けます。
func ReferrerPolicy() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// RequestID はリクエストIDを発行してヘッダーとコンテキストに設定します。
// クライアントが送ってきたIDがあればそれを使います。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger はリクエストごとにアクセスログを出力し、メトリクスを記録します。
func RequestLogger(logger *log.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		m.ObserveRequest(c.Request.Method, path, status, latency)

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency,
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// ErrorHandler はハンドラーが c.Error で渡したエラーをレスポンスに変換します。
// 404のテキスト以外はJSONで返し、development では500の詳細を含めます。
func ErrorHandler(logger *log.Logger, development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, logger, development, handlers.AsHTTPError(c.Errors.Last().Err))
	}
}

// Recovery はpanicを500エラーとしてErrorHandlerと同じ形式で返します。
func Recovery(logger *log.Logger, development bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err, ok := recovered.(error)
		if !ok {
			err = fmt.Errorf("panic: %v", recovered)
		}
		writeError(c, logger, development, handlers.NewInternalError(err))
		c.Abort()
	})
}

func writeError(c *gin.Context, logger *log.Logger, development bool, httpErr *handlers.HTTPError) {
	switch {
	case httpErr.Fields != nil:
		c.JSON(httpErr.Status, gin.H{"errors": httpErr.Fields})
		return
	case httpErr.Plain:
		c.String(httpErr.Status, httpErr.Message)
		return
	}

	if httpErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", c.GetString(requestIDKey),
			"err", httpErr.Err,
		)
	}

	detail := gin.H{}
	if development && httpErr.Err != nil {
		detail["detail"] = httpErr.Err.Error()
	}
	c.JSON(httpErr.Status, gin.H{"message": httpErr.Message, "error": detail})
}

// NotFoundHandler はどのルートにも一致しないリクエストを404にします。
func NotFoundHandler(c *gin.Context) {
	_ = c.Error(&handlers.HTTPError{
		Status:  http.StatusNotFound,
		Message: http.StatusText(http.StatusNotFound),
		Err:     errors.New("no route for " + c.Request.Method + " " + c.Request.URL.Path),
	})
}

// limiterStore はキーごとのトークンバケットを保持します。しばらく使われないキーは削除します。
type limiterStore struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &limiterStore{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
	}
}

func (s *limiterStore) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *limiterStore) cleanup(now time.Time) {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *limiterStore) startJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.cleanup(now)
			}
		}
	}()
}

// RateLimit はクライアントIPごとにリクエスト数を制限します。rps <= 0 の場合は何もしません。
// ctx がキャンセルされると古いエントリの掃除を止めます。
func RateLimit(ctx context.Context, rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := newLimiterStore(rps, burst)
	store.startJanitor(ctx, time.Minute)

	return func(c *gin.Context) {
		now := time.Now()
		lim := store.get(c.ClientIP(), now)

		res := lim.ReserveN(now, 1)
		if !res.OK() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too Many Requests", "error": gin.H{}})
			return
		}
		if delay := res.DelayFrom(now); delay > 0 {
			res.CancelAt(now)
			c.Header("Retry-After", fmt.Sprintf("%d", int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too Many Requests", "error": gin.H{}})
			return
		}
		c.Next()
	}
}
