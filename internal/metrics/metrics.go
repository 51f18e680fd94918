// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、HTTPミドルウェア、クリーンアップジョブから利用する。
type MetricsCollector interface {
	RecordAuthOperation(operation, outcome string)
	RecordPasswordHashLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordRefreshTokensSwept(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOperations *prometheus.CounterVec
	hashLatency    prometheus.Histogram
	httpStatus     *prometheus.CounterVec
	tokensSwept    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileauth_auth_operations_total",
			Help: "認証操作（signup, signin, refresh, logout, authenticate）の結果別の合計数",
		}, []string{"operation", "outcome"}),
		hashLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fileauth_password_hash_seconds",
			Help:    "パスワードのハッシュ化・照合にかかった時間（秒）",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileauth_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		tokensSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fileauth_refresh_tokens_swept_total",
			Help: "クリーンアップで削除された期限切れリフレッシュトークンの合計数",
		}),
	}

	reg.MustRegister(
		c.authOperations,
		c.hashLatency,
		c.httpStatus,
		c.tokensSwept,
	)

	return c
}

// RecordAuthOperation は認証操作の結果を記録する。outcomeは"success"またはエラーコード。
func (c *Collector) RecordAuthOperation(operation, outcome string) {
	c.authOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordPasswordHashLatency はパスワード処理のレイテンシを記録する。
func (c *Collector) RecordPasswordHashLatency(duration time.Duration) {
	c.hashLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRefreshTokensSwept は削除された期限切れトークン数を記録する。
func (c *Collector) RecordRefreshTokensSwept(count int64) {
	c.tokensSwept.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordAuthOperation(string, string)      {}
func (NopCollector) RecordPasswordHashLatency(time.Duration) {}
func (NopCollector) RecordHTTPStatus(int)                    {}
func (NopCollector) RecordRefreshTokensSwept(int64)          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
