// Package metrics はPrometheusのメトリクスを定義します。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// フラグ評価結果のラベル値
const (
	FlagEnabled  = "enabled"
	FlagDisabled = "disabled"
	FlagError    = "error"
	FlagSkipped  = "skipped"
)

// Metrics はアプリケーションのメトリクスをまとめます。
// レジストリはインスタンスごとに持つので、テストで複数作っても衝突しません。
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	FlagEvaluations     *prometheus.CounterVec
	TodoEvents          *prometheus.CounterVec
}

// New は新しいMetricsを作成します。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "todo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		FlagEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_flag_evaluations_total",
				Help: "Feature flag evaluations by result",
			},
			[]string{"flag", "result"},
		),
		TodoEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_events_published_total",
				Help: "Todo events handed to the publisher by outcome",
			},
			[]string{"type", "outcome"},
		),
	}
}

// Registry はメトリクスのレジストリを返します。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler は /metrics 用のHTTPハンドラーを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest はHTTPリクエスト1件を記録します。path はルートのパターン (例: /todos/:id/done)。
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveFlag はフラグ評価1件を記録します。
func (m *Metrics) ObserveFlag(flag, result string) {
	if m == nil {
		return
	}
	m.FlagEvaluations.WithLabelValues(flag, result).Inc()
}

// ObserveEvent はイベント配信1件を記録します。
func (m *Metrics) ObserveEvent(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TodoEvents.WithLabelValues(eventType, outcome).Inc()
}
